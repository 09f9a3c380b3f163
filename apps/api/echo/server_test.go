package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/examreg/apps/api/echo"
	"github.com/trezcool/examreg/core/export"
	"github.com/trezcool/examreg/core/ingest"
	"github.com/trezcool/examreg/core/registration"
	"github.com/trezcool/examreg/testutil"
)

const (
	resultsHeader = "SESSIONYR,FNAME,LNAME,EXAMINATIONNO,ENG,ENGGRD"
	regsHeader    = "Reg. No,Surname,First Name,Gender,ENGY1,ENGY2,ENGY3,rgsType,schType,DOB"
)

func resultsCSV() []byte {
	return testutil.CSV(resultsHeader,
		"2024,Ada,Obi,EX001,75,B",
		",,,,,",
	)
}

func regsCSV(numbers ...string) []byte {
	rows := make([]string, 0, len(numbers))
	for _, n := range numbers {
		rows = append(rows, n+",Obi,Ada,F,50,,,1,0,")
	}
	return testutil.CSV(regsHeader, rows...)
}

func TestHome(t *testing.T) {
	f := setup(t)
	rec := f.do(t, httpTest{path: "/"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to ExamReg API!", rec.Body.String())
}

func TestAuth(t *testing.T) {
	f := setup(t)
	expired := getToken(t, NewClaims("test", "admin", "", true, -time.Minute))
	forged, err := GenerateToken(NewClaims("test", "admin", "", true, time.Hour), "not-the-secret")
	require.NoError(t, err)

	tests := []httpTest{
		{name: "no token", path: "/v1/results/release", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "expired token", path: "/v1/results/release", token: expired, wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errInvalidToken)},
		{name: "forged token", path: "/v1/results/release", token: forged, wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errInvalidToken)},
		{name: "results: school user", path: "/v1/results/release", token: f.schoolToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "export: school user", path: "/v1/students/export-chunk?countOnly=true", token: f.schoolToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "results: admin", path: "/v1/results/release", token: f.adminToken, wantCode: http.StatusOK, wantData: []byte(`{"released":false,"set":false}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.do(t, tt))
		})
	}
}

func TestResults_bulkCreate(t *testing.T) {
	f := setup(t)
	const path = "/v1/results/bulk"

	tests := []httpTest{
		{
			name: "no file", method: http.MethodPost, path: path, token: f.adminToken,
			upload:   &upload{fields: map[string]string{"lol": "lol"}},
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "No file uploaded"}),
		},
		{
			name: "not a csv", method: http.MethodPost, path: path, token: f.adminToken,
			upload:   &upload{filename: "results.xlsx", body: resultsCSV()},
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Only CSV files are accepted"}),
		},
		{
			name: "empty", method: http.MethodPost, path: path, token: f.adminToken,
			upload:   &upload{filename: "results.csv"},
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "No valid data found in CSV"}),
		},
		{
			name: "header only", method: http.MethodPost, path: path, token: f.adminToken,
			upload:   &upload{filename: "results.csv", body: []byte(resultsHeader + "\n")},
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "No valid data found in CSV"}),
		},
		{
			name: "missing key column", method: http.MethodPost, path: path, token: f.adminToken,
			upload:   &upload{filename: "results.csv", body: testutil.CSV("FNAME,LNAME", "Ada,Obi")},
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Missing required column EXAMINATIONNO"}),
		},
		{
			name: "too large", method: http.MethodPost, path: path, token: f.adminToken,
			upload:   &upload{filename: "results.csv", body: bytes.Repeat([]byte("x"), 2<<20)},
			wantCode: http.StatusRequestEntityTooLarge, wantData: marshalObj(t, httpErr{Error: "uploaded file is too large"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.do(t, tt))
		})
	}

	t.Run("created", func(t *testing.T) {
		rec := f.do(t, httpTest{method: http.MethodPost, path: path, token: f.adminToken, upload: &upload{filename: "RESULTS.CSV", body: resultsCSV()}})
		require.Equal(t, http.StatusCreated, rec.Code)
		s := decodeSummary(t, rec)
		assert.True(t, s.Success)
		assert.Equal(t, 1, s.Created)
		assert.Equal(t, 2, s.TotalProcessed)
		assert.Equal(t, []ingest.RowRejection{{
			Row:    3,
			Error:  "Missing required fields (SESSIONYR, EXAMINATIONNO, or name)",
			Reason: ingest.ReasonMissingRequiredField,
		}}, s.Errors)
	})

	t.Run("retrieve", func(t *testing.T) {
		rec := f.do(t, httpTest{path: "/v1/results/EX001", token: f.adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var res map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Contains(t, res, "examinationNo")

		checkCodeAndData(t,
			httpTest{wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "not found"})},
			f.do(t, httpTest{path: "/v1/results/EX404", token: f.adminToken}),
		)
	})

	t.Run("duplicates", func(t *testing.T) {
		rec := f.do(t, httpTest{method: http.MethodPost, path: path, token: f.adminToken, upload: &upload{filename: "results.csv", body: resultsCSV()}})
		require.Equal(t, http.StatusCreated, rec.Code)
		s := decodeSummary(t, rec)
		assert.Equal(t, 0, s.Created)
		assert.Equal(t, 1, s.CountByReason()[ingest.ReasonDuplicateKey])
	})
}

func TestResults_bulkCreate_stream(t *testing.T) {
	f := setup(t)

	rec := f.do(t, httpTest{
		method: http.MethodPost, path: "/v1/results/bulk", token: f.adminToken, sse: true,
		upload: &upload{filename: "results.csv", body: resultsCSV()},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	events := readEvents(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, ingest.PhaseValidating, events[0].Phase)
	assert.Equal(t, 0, events[0].Progress)

	last := events[len(events)-1]
	assert.Equal(t, ingest.PhaseComplete, last.Phase)
	assert.Equal(t, 100, last.Progress)
	require.NotNil(t, last.Summary)
	assert.True(t, last.Success)
	assert.Equal(t, 1, last.Created)

	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Progress, events[i-1].Progress, "event %d", i)
		assert.NotEqual(t, ingest.PhaseComplete, events[i-1].Phase, "complete sent twice")
	}

	t.Run("errors before any event stay JSON", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: "/v1/results/bulk", token: f.adminToken, sse: true,
			upload:   &upload{filename: "results.csv", body: testutil.CSV("FNAME,LNAME", "Ada,Obi")},
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Missing required column EXAMINATIONNO"}),
		}
		checkCodeAndData(t, tt, f.do(t, tt))
	})
}

func TestRegistrations_bulkCreate(t *testing.T) {
	f := setup(t)
	const path = "/v1/registrations/bulk"

	tests := []httpTest{
		{
			name: "no token", method: http.MethodPost, path: path,
			upload:   &upload{filename: "regs.csv", body: regsCSV("S01")},
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken),
		},
		{
			name: "neither school nor admin", method: http.MethodPost, path: path, token: f.userToken,
			upload:   &upload{filename: "regs.csv", body: regsCSV("S01")},
			wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "admin without school", method: http.MethodPost, path: path, token: f.adminToken,
			upload:   &upload{filename: "regs.csv", body: regsCSV("S01")},
			wantCode: http.StatusBadRequest, wantData: []byte(`{"schoolId":"schoolId is a required field"}`),
		},
		{
			name: "admin with unknown school", method: http.MethodPost, path: path, token: f.adminToken,
			upload:   &upload{filename: "regs.csv", body: regsCSV("S01"), fields: map[string]string{"schoolId": "lol"}},
			wantCode: http.StatusBadRequest, wantData: []byte(`{"schoolId":"school not found"}`),
		},
		{
			name: "bad registration type", method: http.MethodPost, path: path, token: f.schoolToken,
			upload:   &upload{filename: "regs.csv", body: regsCSV("S01"), fields: map[string]string{"registrationType": "lol"}},
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"registrationType": registration.ErrInvalidPartition.Error()}),
		},
		{
			name: "missing key column", method: http.MethodPost, path: path, token: f.schoolToken,
			upload:   &upload{filename: "regs.csv", body: testutil.CSV("Surname,First Name", "Obi,Ada")},
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Missing required column Reg. No"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.do(t, tt))
		})
	}

	created := []struct {
		name        string
		token       string
		fields      map[string]string
		numbers     []string
		wantCreated int
	}{
		{name: "school user", token: f.schoolToken, numbers: []string{"S01", "S02"}, wantCreated: 2},
		{name: "school user again", token: f.schoolToken, numbers: []string{"S01", "S02", "S03"}, wantCreated: 1},
		{name: "school id in form is ignored for school users", token: f.schoolToken, fields: map[string]string{"schoolId": f.schoolB.ID}, numbers: []string{"S03"}, wantCreated: 0},
		{name: "admin for school B", token: f.adminToken, fields: map[string]string{"schoolId": f.schoolB.ID}, numbers: []string{"S01"}, wantCreated: 0},
		{name: "late partition", token: f.schoolToken, fields: map[string]string{"registrationType": "late"}, numbers: []string{"L01"}, wantCreated: 1},
		{name: "post partition", token: f.schoolToken, fields: map[string]string{"registrationType": "post"}, numbers: []string{"S01"}, wantCreated: 1},
		{name: "override", token: f.schoolToken, fields: map[string]string{"override": "true"}, numbers: []string{"S01", "S02", "S03", "S04"}, wantCreated: 4},
	}
	for _, tt := range created {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, httpTest{method: http.MethodPost, path: path, token: tt.token, upload: &upload{filename: "regs.csv", body: regsCSV(tt.numbers...), fields: tt.fields}})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			s := decodeSummary(t, rec)
			assert.True(t, s.Success)
			assert.Equal(t, tt.wantCreated, s.Created)
		})
	}
}

func TestRegistrations_bulkCreate_transactionTimeout(t *testing.T) {
	f := setup(t, failures{replace: true})
	up := &upload{filename: "regs.csv", body: regsCSV("S01", "S02"), fields: map[string]string{"override": "true"}}
	const msg = "Database transaction timed out, nothing was saved. Please retry with a smaller file."

	t.Run("buffered", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: "/v1/registrations/bulk", token: f.schoolToken, upload: up,
			wantCode: http.StatusGatewayTimeout, wantData: marshalObj(t, httpErr{Error: msg}),
		}
		checkCodeAndData(t, tt, f.do(t, tt))
	})

	t.Run("stream", func(t *testing.T) {
		rec := f.do(t, httpTest{method: http.MethodPost, path: "/v1/registrations/bulk", token: f.schoolToken, upload: up, sse: true})
		require.Equal(t, http.StatusOK, rec.Code)
		events := readEvents(t, rec.Body.String())
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, ingest.PhaseComplete, last.Phase)
		assert.Equal(t, msg, last.Error)
		require.NotNil(t, last.Summary)
		assert.False(t, last.Success)
		assert.Equal(t, 0, last.Created)
	})

	assert.Equal(t, 2, f.logger.Count("WARN"))
}

func TestRegistrations_bulkCreate_overrideNothingValid(t *testing.T) {
	f := setup(t)
	seed := f.do(t, httpTest{method: http.MethodPost, path: "/v1/registrations/bulk", token: f.schoolToken, upload: &upload{filename: "regs.csv", body: regsCSV("A1", "A2")}})
	require.Equal(t, http.StatusCreated, seed.Code, seed.Body.String())

	up := &upload{filename: "regs.csv", body: regsCSV(""), fields: map[string]string{"override": "true"}}
	const msg = "No valid registrations to save"

	t.Run("buffered", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: "/v1/registrations/bulk", token: f.schoolToken, upload: up,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: msg}),
		}
		checkCodeAndData(t, tt, f.do(t, tt))
	})

	t.Run("stream", func(t *testing.T) {
		rec := f.do(t, httpTest{method: http.MethodPost, path: "/v1/registrations/bulk", token: f.schoolToken, upload: up, sse: true})
		require.Equal(t, http.StatusOK, rec.Code)
		events := readEvents(t, rec.Body.String())
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, ingest.PhaseComplete, last.Phase)
		assert.Equal(t, msg, last.Error)
		require.NotNil(t, last.Summary)
		assert.False(t, last.Success)
	})

	rec := f.do(t, httpTest{path: "/v1/students/export-chunk?countOnly=true", token: f.adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var counts export.CountResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, 2, counts.TotalCount)
}

func TestExport_stream_fetchFails(t *testing.T) {
	f := setup(t, failures{fetch: true})

	rec := f.do(t, httpTest{path: "/v1/students/export", token: f.adminToken})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.JSONEq(t, string(marshalObj(t, httpErr{Error: "Internal Server Error"})), rec.Body.String())
}

func seedRegistrations(t *testing.T, f fixture) {
	t.Helper()
	for _, up := range []struct {
		token  string
		fields map[string]string
		body   []byte
	}{
		{token: f.schoolToken, body: regsCSV("A1", "A2", "A3")},
		{token: f.schoolToken, fields: map[string]string{"registrationType": "late"}, body: regsCSV("AL1")},
		{token: f.adminToken, fields: map[string]string{"schoolId": f.schoolB.ID, "registrationType": "post"}, body: regsCSV("BP1")},
	} {
		rec := f.do(t, httpTest{method: http.MethodPost, path: "/v1/registrations/bulk", token: up.token, upload: &upload{filename: "regs.csv", body: up.body, fields: up.fields}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestExport_stream(t *testing.T) {
	f := setup(t)
	seedRegistrations(t, f)

	rec := f.do(t, httpTest{path: "/v1/students/export", token: f.adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="students_export_`)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "S/N,school_session,progID,Reg. No"))
	for i, line := range lines[1:] {
		assert.True(t, strings.HasPrefix(line, fmt.Sprintf("%d,", i+1)), line)
	}
	assert.Contains(t, lines[4], "AL1")
	assert.Contains(t, lines[5], "BP1")

	tests := []httpTest{
		{name: "bad registration type", path: "/v1/students/export?registrationType=lol", token: f.adminToken, wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"registrationType": export.ErrInvalidRegistrationType.Error()})},
		{name: "not admin", path: "/v1/students/export", token: f.schoolToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.do(t, tt))
		})
	}

	t.Run("filtered", func(t *testing.T) {
		rec := f.do(t, httpTest{path: "/v1/students/export?registrationType=post&lga=all", token: f.adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[1], "BP1")
	})
}

func TestExport_chunk(t *testing.T) {
	f := setup(t)
	seedRegistrations(t, f)
	const path = "/v1/students/export-chunk"

	tests := []httpTest{
		{
			name: "count", path: path + "?countOnly=true", token: f.adminToken, wantCode: http.StatusOK,
			wantData: marshalObj(t, export.CountResult{TotalCount: 5, Tables: []export.TableCount{
				{Table: export.TableRegular, Count: 3},
				{Table: export.TableLate, Count: 1},
				{Table: export.TablePost, Count: 1},
			}}),
		},
		{
			name: "count filtered", path: path + "?countOnly=true&schoolCode=002", token: f.adminToken, wantCode: http.StatusOK,
			wantData: marshalObj(t, export.CountResult{TotalCount: 1, Tables: []export.TableCount{
				{Table: export.TableRegular, Count: 0},
				{Table: export.TableLate, Count: 0},
				{Table: export.TablePost, Count: 1},
			}}),
		},
		{name: "no table", path: path, token: f.adminToken, wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"table": export.ErrInvalidTable.Error()})},
		{name: "bad table", path: path + "?table=lol", token: f.adminToken, wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"table": export.ErrInvalidTable.Error()})},
		{name: "bad countOnly", path: path + "?countOnly=lol", token: f.adminToken, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.do(t, tt))
		})
	}

	t.Run("cursor paging", func(t *testing.T) {
		var (
			numbers []string
			cursor  string
			pages   int
		)
		for {
			p := path + "?table=" + string(export.TableRegular)
			if cursor != "" {
				p += "&cursor=" + cursor
			}
			rec := f.do(t, httpTest{path: p, token: f.adminToken})
			require.Equal(t, http.StatusOK, rec.Code)
			var chunk export.ChunkResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chunk))
			pages++
			for _, row := range chunk.Rows {
				numbers = append(numbers, row[2])
			}
			if !chunk.HasMore {
				assert.Nil(t, chunk.NextCursor)
				break
			}
			require.NotNil(t, chunk.NextCursor)
			cursor = *chunk.NextCursor
		}
		assert.Equal(t, 2, pages)
		assert.ElementsMatch(t, []string{"A1", "A2", "A3"}, numbers)
	})
}

func TestExport_client(t *testing.T) {
	f := setup(t)
	seedRegistrations(t, f)
	srv := httptest.NewServer(f.srv)
	t.Cleanup(srv.Close)

	streamed := f.do(t, httpTest{path: "/v1/students/export", token: f.adminToken})
	require.Equal(t, http.StatusOK, streamed.Code)

	var progress []int
	client := export.NewClient(srv.URL, f.adminToken, nil)
	client.Progress = func(exported, total int) {
		assert.Equal(t, 5, total)
		progress = append(progress, exported)
	}
	var buf bytes.Buffer
	n, err := client.Export(context.Background(), &buf, export.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, streamed.Body.String(), buf.String())
	assert.Equal(t, []int{2, 3, 4, 5}, progress)

	t.Run("unauthorized", func(t *testing.T) {
		client := export.NewClient(srv.URL, f.schoolToken, nil)
		client.RetryBase = time.Millisecond
		_, err := client.Export(context.Background(), new(bytes.Buffer), export.Filter{})
		var fetchErr *export.ExportFetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, 0, fetchErr.Exported)
	})
}

func TestMetrics(t *testing.T) {
	f := setup(t)
	seedRegistrations(t, f)
	f.do(t, httpTest{path: "/v1/students/export", token: f.adminToken})

	rec := f.do(t, httpTest{path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `examreg_ingest_rows_created_total{pipeline="registrations"} 5`)
	assert.Contains(t, body, `examreg_export_rows_total{table="studentRegistration-regular"} 3`)
	assert.Contains(t, body, `examreg_http_request_duration_seconds_count{method="POST",route="/v1/registrations/bulk",status="201"} 3`)
}
