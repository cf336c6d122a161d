// Package errorreport implements the crash/error report mechanism every
// user-visible failure path materializes into, grounded on the teacher's
// own diagnostic-collector Config/FieldLogger idiom (lib/report.Config)
// with the collector set replaced: subiquity reports one failure at a
// time (an install error, an uncaught server exception) rather than a
// whole-cluster diagnostic bundle, and attaches apport-style extra files
// and key/value data instead of Kubernetes/etcd snapshots.
package errorreport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
)

// Kind identifies what sort of failure produced the report, mirroring
// spec.md's ErrorReport.Kind.
type Kind string

// Kind values.
const (
	KindBlock       Kind = "block"
	KindInstallFail Kind = "install-fail"
	KindUIFail      Kind = "ui-fail"
	KindNetworkFail Kind = "network-fail"
	KindServerFail  Kind = "server-fail"
)

// Ref is the stable wire reference to a materialized Report, named "base"
// for parity with apport's report-name convention and with spec's own
// ErrorReportRef -- embedded in every error envelope so a client can point
// the user at exactly the report the failing request produced.
type Ref struct {
	Base string `json:"base"`
}

// Report is one materialized crash/error report.
type Report struct {
	Ref    string `json:"ref"`
	Kind   Kind   `json:"kind"`
	Path   string `json:"path"`
	Seen   bool   `json:"seen"`
	Errors []string `json:"errors,omitempty"`
}

// Reporter collects extra files/data and materializes reports into
// dataDir, mirroring apport's NoteFileForApport/NoteDataForApport plus a
// synchronous MakeReport.
type Reporter struct {
	dataDir string
	log     logrus.FieldLogger

	mu    sync.Mutex
	files map[string]string
	data  map[string]string
}

// Config configures a Reporter.
type Config struct {
	DataDir string
	Log     logrus.FieldLogger
}

// CheckAndSetDefaults validates Config the way the teacher's
// lib/report.Config.checkAndSetDefaults does.
func (c *Config) CheckAndSetDefaults() error {
	if c.DataDir == "" {
		return trace.BadParameter("missing DataDir")
	}
	if c.Log == nil {
		c.Log = logrus.WithField(trace.Component, "errorreport")
	}
	return nil
}

// New constructs a Reporter.
func New(cfg Config) (*Reporter, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return &Reporter{
		dataDir: cfg.DataDir,
		log:     cfg.Log,
		files:   make(map[string]string),
		data:    make(map[string]string),
	}, nil
}

// NoteFileForApport records that the file at path should be attached,
// under key, to every report made from now on; notes are never cleared.
func (r *Reporter) NoteFileForApport(key, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[key] = path
}

// NoteDataForApport records a key/value pair to attach to every report
// made from now on; notes are never cleared.
func (r *Reporter) NoteDataForApport(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value
}

// MakeReport materializes a Report of the given kind synchronously,
// copying every noted file's content alongside a manifest.json that
// records the key/value data and the failing error chain.
func (r *Reporter) MakeReport(kind Kind, causes ...error) (*Report, error) {
	r.mu.Lock()
	files := copyMap(r.files)
	data := copyMap(r.data)
	r.mu.Unlock()

	ref := uuid.New()
	dir := filepath.Join(r.dataDir, ref)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	for key, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			r.log.WithError(err).Warnf("failed to attach %s", key)
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, key), content, 0o600); err != nil {
			r.log.WithError(err).Warnf("failed to write %s", key)
		}
	}

	var errStrings []string
	for _, c := range causes {
		if c != nil {
			errStrings = append(errStrings, c.Error())
		}
	}

	report := &Report{
		Ref:    ref,
		Kind:   kind,
		Path:   dir,
		Errors: errStrings,
	}

	manifest := struct {
		Report    *Report           `json:"report"`
		Data      map[string]string `json:"data"`
		Timestamp time.Time         `json:"timestamp"`
	}{Report: report, Data: data, Timestamp: time.Now()}

	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), encoded, 0o600); err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	return report, nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
