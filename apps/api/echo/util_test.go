package echoapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/examreg/apps/api/echo"
	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/export"
	"github.com/trezcool/examreg/core/ingest"
	"github.com/trezcool/examreg/core/registration"
	"github.com/trezcool/examreg/core/result"
	"github.com/trezcool/examreg/core/school"
	metricsvc "github.com/trezcool/examreg/services/metrics"
	inmemdb "github.com/trezcool/examreg/storage/database/inmem"
	"github.com/trezcool/examreg/testutil"
)

const secretKey = "test-secret"

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errInvalidToken = httpErr{Error: "invalid or expired jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

// failingRepo breaks selected repository calls.
type failingRepo struct {
	*inmemdb.RegistrationRepository
	failures
}

type failures struct {
	replace bool // replaces time out
	fetch   bool // export reads fail
}

func (r failingRepo) ReplaceRegistrations(ctx context.Context, s registration.Scope, fn func(context.Context, registration.Writer) error) error {
	if r.replace {
		return core.ErrTransactionTimeout
	}
	return r.RegistrationRepository.ReplaceRegistrations(ctx, s, fn)
}

func (r failingRepo) FetchStudents(ctx context.Context, p registration.Partition, f registration.Filter, after string, limit int) ([]registration.Exportable, error) {
	if r.fetch {
		return nil, errors.New("connection reset")
	}
	return r.RegistrationRepository.FetchStudents(ctx, p, f, after, limit)
}

type registrationRepo interface {
	registration.Repository
	export.Source
}

type fixture struct {
	srv     Server
	logger  *testutil.Logger
	metrics *metricsvc.Prometheus
	schoolA school.School
	schoolB school.School

	adminToken  string
	schoolToken string // school A
	userToken   string // neither admin nor school
}

func setup(t *testing.T, fail ...failures) fixture {
	t.Helper()
	ctx := context.Background()
	db := inmemdb.NewDB()
	validate, translator := testutil.NewValidator()
	logger := new(testutil.Logger)
	metrics := metricsvc.NewPrometheus()

	dir, err := school.LoadDirectory()
	testutil.Fatal(t, "school.LoadDirectory()", err)
	schools := school.NewService(inmemdb.NewSchoolRepository(db), dir)
	schA, err := schools.Create(ctx, school.NewSchool{Name: "Alpha JSS", Code: "001", LGACode: "101"})
	testutil.Fatal(t, "schools.Create()", err)
	schB, err := schools.Create(ctx, school.NewSchool{Name: "Beta JSS", Code: "002", LGACode: "102", Type: school.TypePrivate})
	testutil.Fatal(t, "schools.Create()", err)

	var regRepo registrationRepo = inmemdb.NewRegistrationRepository(db)
	if len(fail) > 0 {
		regRepo = failingRepo{inmemdb.NewRegistrationRepository(db), fail[0]}
	}
	opts := ingest.Options{ChunkSize: 2, ProgressEvery: 1}

	srv := NewServer(
		&Options{
			TestMode:       true,
			DisableReqLogs: true,
			SecretKey:      secretKey,
			MaxUploadSize:  1 << 20,
		},
		nil,
		&Deps{
			Logger:          logger,
			Translator:      translator,
			ResultSvc:       result.NewService(inmemdb.NewResultRepository(db), dir, validate, logger, opts, metrics),
			RegistrationSvc: registration.NewService(regRepo, schools, validate, logger, opts, metrics),
			Exporter: export.NewStreamer(export.Deps{
				Source:     regRepo,
				SchoolData: schools,
				Directory:  dir,
				Logger:     logger,
				Metrics:    metrics,
			}, export.Options{ChunkSize: 2}),
			Metrics:        metrics,
			MetricsHandler: metrics.Handler(),
		},
	)

	return fixture{
		srv:         srv,
		logger:      logger,
		metrics:     metrics,
		schoolA:     schA,
		schoolB:     schB,
		adminToken:  getToken(t, NewClaims("test", "admin", "", true, time.Hour)),
		schoolToken: getToken(t, NewClaims("test", "user-a", schA.ID, false, time.Hour)),
		userToken:   getToken(t, NewClaims("test", "nobody", "", false, time.Hour)),
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	token    string
	upload   *upload
	sse      bool
	wantCode int
	wantData []byte
}

type upload struct {
	filename string
	body     []byte
	fields   map[string]string
}

func (u *upload) encode(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range u.fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if u.filename != "" {
		fw, err := mw.CreateFormFile("file", u.filename)
		require.NoError(t, err)
		_, err = fw.Write(u.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func (f fixture) do(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}

	var req *http.Request
	if tt.upload != nil {
		body, contentType := tt.upload.encode(t)
		req = httptest.NewRequest(method, tt.path, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, tt.path, nil)
	}
	if tt.token != "" {
		req.Header.Set("Authorization", "Bearer "+tt.token)
	}
	if tt.sse {
		req.Header.Set("Accept", "text/event-stream")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, claims *Claims) string {
	t.Helper()
	token, err := GenerateToken(claims, secretKey)
	testutil.Fatal(t, "GenerateToken()", err)
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	testutil.Fatal(t, "json.Marshal()", err)
	return data
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code)
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

func decodeSummary(t *testing.T, rec *httptest.ResponseRecorder) ingest.Summary {
	t.Helper()
	var s ingest.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

// readEvents splits an SSE body into its events.
func readEvents(t *testing.T, body string) []ingest.Event {
	t.Helper()
	var events []ingest.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected frame line %q", line)
		var e ingest.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		events = append(events, e)
	}
	require.NoError(t, sc.Err())
	return events
}
