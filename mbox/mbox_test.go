package mbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mboxport/mboxport/label"
	"github.com/mboxport/mboxport/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleMbox = `From alice@example.com Thu Jan  1 10:00:00 2015
From: alice@example.com
To: bob@example.com
Date: Thu, 01 Jan 2015 10:00:00 +0000
X-Gmail-Labels: Sent,Opened
Subject: first

hello bob

From bob@example.com Thu Jan  1 11:00:00 2015
From: bob@example.com
To: alice@example.com
Date: Thu, 01 Jan 2015 11:00:00 +0000
X-Gmail-Labels: "Friends, Family",Unread
Subject: second

hello alice
`

func writeMbox(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.mbox")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func stream(t *testing.T, opts Options) []model.Envelope {
	t.Helper()
	reader, err := NewReader(opts, testLogger())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	out := make(chan model.Envelope, 64)
	if err := reader.Stream(context.Background(), out); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	close(out)

	var envs []model.Envelope
	for env := range out {
		envs = append(envs, env)
	}
	return envs
}

func TestStream(t *testing.T) {
	path := writeMbox(t, sampleMbox)
	ignore := label.NewIgnoreSet(label.DefaultIgnored())

	envs := stream(t, Options{Path: path, Ignore: ignore})
	if len(envs) != 2 {
		t.Fatalf("got %d envelopes, want 2", len(envs))
	}

	first := envs[0].Message
	if envs[0].Err != nil {
		t.Fatalf("first envelope error: %v", envs[0].Err)
	}
	if !reflect.DeepEqual(first.Labels, []string{"Sent"}) {
		t.Errorf("first labels = %v, want [Sent]", first.Labels)
	}
	if first.ReceivedAt.IsZero() {
		t.Error("first message date not parsed")
	}
	if first.Identity == "" || first.Size == 0 || len(first.Raw) == 0 {
		t.Errorf("incomplete message: %+v", first)
	}

	second := envs[1].Message
	if !reflect.DeepEqual(second.Labels, []string{"Friends, Family"}) {
		t.Errorf("second labels = %v, want quoted label kept whole", second.Labels)
	}

	if first.Identity == second.Identity {
		t.Error("distinct entries must have distinct identities")
	}
}

func TestStream_DeterministicIdentities(t *testing.T) {
	path := writeMbox(t, sampleMbox)

	a := stream(t, Options{Path: path})
	b := stream(t, Options{Path: path})
	if len(a) != len(b) {
		t.Fatalf("run lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Message.Identity != b[i].Message.Identity {
			t.Errorf("entry %d identity changed between runs", i)
		}
	}
}

func TestStream_DuplicateEntriesStayDistinct(t *testing.T) {
	entry := `From alice@example.com Thu Jan  1 10:00:00 2015
From: alice@example.com
Subject: same

same body
`
	path := writeMbox(t, entry+"\n"+entry)

	envs := stream(t, Options{Path: path})
	if len(envs) != 2 {
		t.Fatalf("got %d envelopes, want 2", len(envs))
	}
	if envs[0].Message.Identity == envs[1].Message.Identity {
		t.Error("byte-identical entries must still get distinct identities")
	}
}

func TestStream_MalformedEntryEmitsError(t *testing.T) {
	content := `From alice@example.com Thu Jan  1 10:00:00 2015
no colon in this header line

body

From bob@example.com Thu Jan  1 11:00:00 2015
From: bob@example.com
Subject: fine

ok
`
	path := writeMbox(t, content)

	envs := stream(t, Options{Path: path})
	if len(envs) != 2 {
		t.Fatalf("got %d envelopes, want 2", len(envs))
	}
	if envs[0].Err == nil {
		t.Error("malformed entry should produce an error envelope")
	}
	if envs[1].Err != nil {
		t.Errorf("entry after the malformed one must still decode: %v", envs[1].Err)
	}
}

func TestIdentity(t *testing.T) {
	raw := []byte("From: a@b\r\n\r\nbody")

	if Identity(raw, 0) != Identity(raw, 0) {
		t.Error("identity must be deterministic")
	}
	if Identity(raw, 0) == Identity(raw, 1) {
		t.Error("ordinal must distinguish identical bytes")
	}
	if len(Identity(raw, 0)) != 64 {
		t.Errorf("identity length = %d, want 64 hex chars", len(Identity(raw, 0)))
	}
}

func TestCount(t *testing.T) {
	path := writeMbox(t, sampleMbox)

	count, err := Count(path)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("Count = %d, want 2", count)
	}
}

func TestNewReader_EmptyPath(t *testing.T) {
	if _, err := NewReader(Options{}, testLogger()); err == nil {
		t.Error("expected error for empty path")
	}
}
