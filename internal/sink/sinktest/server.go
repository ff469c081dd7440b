// Package sinktest provides an in-process SurrealDB HTTP fake for tests.
package sinktest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/dumpimport/internal/sink"
	"github.com/leapstack-labs/dumpimport/pkg/dump"
)

// Credentials accepted by the fake.
const (
	Username  = "root"
	Password  = "secret"
	Namespace = "test"
	Database  = "test"
)

// ImportFunc decides the response for one import. statements excludes the
// transaction framing. Returning a status other than 200 makes the fake
// answer with that status and the message as body.
type ImportFunc func(statements []string) (status int, results []sink.Result)

// Server is a fake SurrealDB instance.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	imports [][]string
	sql     []string
	handler ImportFunc
}

// New starts a fake server that accepts every statement. It is closed when
// the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{handler: AcceptAll}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.authenticate)
	r.Post("/import", s.handleImport)
	r.Post("/sql", s.handleSQL)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Config returns a sink configuration pointing at the fake.
func (s *Server) Config() sink.Config {
	return sink.Config{
		Endpoint:  s.URL,
		Username:  Username,
		Password:  Password,
		Namespace: Namespace,
		Database:  Database,
	}
}

// OnImport replaces the import handler.
func (s *Server) OnImport(fn ImportFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// Imports returns the statements of every import received, in arrival order.
func (s *Server) Imports() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.imports))
	copy(out, s.imports)
	return out
}

// Imported returns every imported statement flattened in arrival order.
func (s *Server) Imported() []string {
	var all []string
	for _, batch := range s.Imports() {
		all = append(all, batch...)
	}
	return all
}

// SQL returns the bodies posted to /sql.
func (s *Server) SQL() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sql))
	copy(out, s.sql)
	return out
}

// AcceptAll reports success for every statement.
func AcceptAll(statements []string) (int, []sink.Result) {
	results := make([]sink.Result, len(statements))
	for i := range statements {
		results[i] = OK()
	}
	return http.StatusOK, results
}

// FailAt fails the statement at index with msg and reports every later
// statement as not executed, the way an aborted transaction does.
func FailAt(index int, msg string) ImportFunc {
	return func(statements []string) (int, []sink.Result) {
		results := make([]sink.Result, len(statements))
		for i := range statements {
			switch {
			case i < index:
				results[i] = OK()
			case i == index:
				results[i] = Err(msg)
			default:
				results[i] = Err("The query was not executed due to a failed transaction")
			}
		}
		return http.StatusOK, results
	}
}

// OK returns a successful result.
func OK() sink.Result {
	return sink.Result{Status: "OK", Time: "1ms", Result: json.RawMessage(`[]`)}
}

// Err returns a failed result carrying msg.
func Err(msg string) sink.Result {
	raw, _ := json.Marshal(msg)
	return sink.Result{Status: sink.StatusErr, Time: "1ms", Result: raw}
}

// SplitImport recovers the statements of an import body.
func SplitImport(body string) ([]string, error) {
	lx := dump.NewLexer(strings.NewReader(body))
	var stmts []string
	for {
		tok, err := lx.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if tok.IsQuery() {
			stmts = append(stmts, tok.Text)
		}
	}
	if len(stmts) < 3 || stmts[0] != "BEGIN TRANSACTION;\n" || stmts[1] != "OPTION IMPORT;\n" ||
		strings.TrimSpace(stmts[len(stmts)-1]) != "COMMIT TRANSACTION;" {
		return nil, errors.New("import body is not framed as a transaction")
	}
	return stmts[2 : len(stmts)-1], nil
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != Username || pass != Password {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Surreal-NS") != Namespace || r.Header.Get("Surreal-DB") != Database {
			http.Error(w, "unknown namespace or database", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stmts, err := SplitImport(string(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.imports = append(s.imports, stmts)
	handler := s.handler
	s.mu.Unlock()

	status, results := handler(stmts)
	if status != http.StatusOK {
		http.Error(w, "import rejected", status)
		return
	}
	writeJSON(w, results)
}

func (s *Server) handleSQL(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.sql = append(s.sql, string(body))
	s.mu.Unlock()

	writeJSON(w, []sink.Result{OK()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
