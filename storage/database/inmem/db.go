// Package inmemdb holds map-backed repositories used by tests and local runs without a database.
package inmemdb

import (
	"sync"

	"github.com/trezcool/examreg/core/registration"
	"github.com/trezcool/examreg/core/result"
	"github.com/trezcool/examreg/core/school"
)

type (
	DB struct {
		school        *schoolTable
		result        *resultTable
		registrations *registrationTables
	}

	schoolTable struct {
		sync.RWMutex
		table map[string]school.School
		data  map[string]school.Data // by lgaCode|schCode
		order []string               // data keys in insertion order
	}

	resultTable struct {
		sync.RWMutex
		table    map[string]result.Result // by examination number
		settings map[string]result.Setting
	}

	// registrationTables shares one lock across both registration tables so a replace is atomic.
	registrationTables struct {
		sync.RWMutex
		tables map[registration.Table]map[string]registration.Registration // by student number
	}
)

func NewDB() *DB {
	return &DB{
		school: &schoolTable{
			table: make(map[string]school.School),
			data:  make(map[string]school.Data),
		},
		result: &resultTable{
			table:    make(map[string]result.Result),
			settings: make(map[string]result.Setting),
		},
		registrations: &registrationTables{
			tables: map[registration.Table]map[string]registration.Registration{
				registration.TableStudent: {},
				registration.TablePost:    {},
			},
		},
	}
}
