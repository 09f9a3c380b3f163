package main

import (
	"fmt"
	"time"

	"github.com/trezcool/examreg/apps"
	echoapi "github.com/trezcool/examreg/apps/api/echo"
)

func (cli *commandLine) token(sub, schoolID string, admin bool, ttl time.Duration) error {
	if schoolID == "" && !admin {
		return apps.NewArgumentError("school", "is required unless -admin is set")
	}
	if ttl <= 0 {
		return apps.NewArgumentError("ttl", "must be positive")
	}
	tkn, err := echoapi.GenerateToken(echoapi.NewClaims(cli.conf.AppName, sub, schoolID, admin, ttl), cli.conf.SecretKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, tkn)
	return nil
}
