package logging_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/zalando/replicator/logging"
)

func newTestLog() (*logging.DefaultLog, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logging.NewWithLogger(l), buf
}

func TestLogger(t *testing.T) {
	log, buf := newTestLog()

	log.Error("error")
	s := buf.String()
	buf.Reset()
	if !strings.HasSuffix(s, "error\n") {
		t.Fatalf(`Failed log.Error: want suffix "error", got %q`, s)
	}

	log.Errorf("errorf: %s", "foo")
	s = strings.TrimSpace(buf.String())
	buf.Reset()
	if !strings.HasSuffix(s, `errorf: foo"`) {
		t.Fatalf(`Failed log.Errorf: want suffix "errorf: foo", got %q`, s)
	}

	log.Warn("warn")
	s = buf.String()
	buf.Reset()
	if !strings.HasSuffix(s, "warn\n") {
		t.Fatalf(`Failed log.Warn: want suffix "warn", got %q`, s)
	}

	log.Warnf("warnf: %s", "foo")
	s = strings.TrimSpace(buf.String())
	buf.Reset()
	if !strings.HasSuffix(s, `warnf: foo"`) {
		t.Fatalf(`Failed log.Warnf: want suffix "warnf: foo", got %q`, s)
	}

	log.Info("info")
	s = buf.String()
	buf.Reset()
	if !strings.HasSuffix(s, "info\n") {
		t.Fatalf(`Failed log.Info: want suffix "info", got %q`, s)
	}

	log.Infof("infof: %s", "foo")
	s = strings.TrimSpace(buf.String())
	buf.Reset()
	if !strings.HasSuffix(s, `infof: foo"`) {
		t.Fatalf(`Failed log.Infof: want suffix "infof: foo", got %q`, s)
	}

	log.Debug("debug")
	s = buf.String()
	buf.Reset()
	if !strings.HasSuffix(s, "debug\n") {
		t.Fatalf(`Failed log.Debug: want suffix "debug", got %q`, s)
	}

	log.Debugf("debugf: %s", "foo")
	s = strings.TrimSpace(buf.String())
	buf.Reset()
	if !strings.HasSuffix(s, `debugf: foo"`) {
		t.Fatalf(`Failed log.Debugf: want suffix "debugf: foo", got %q`, s)
	}
}

func TestWithFieldsDoesNotModifyParent(t *testing.T) {
	log, buf := newTestLog()

	child := log.WithFields(map[string]interface{}{"replication-id": "abc"})
	child.Info("child")
	if s := buf.String(); !strings.Contains(s, "replication-id=abc") {
		t.Fatalf("Failed to log field, got %q", s)
	}

	buf.Reset()
	log.Info("parent")
	if s := buf.String(); strings.Contains(s, "replication-id") {
		t.Fatalf("Parent logger got child field: %q", s)
	}

	buf.Reset()
	child.WithFields(map[string]interface{}{"method": "POST"}).Info("grandchild")
	s := buf.String()
	if !strings.Contains(s, "replication-id=abc") || !strings.Contains(s, "method=POST") {
		t.Fatalf("Failed to merge fields, got %q", s)
	}
}
