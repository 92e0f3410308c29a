package inspect

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/weberc2/ext2fs/pkg/device"
	"github.com/weberc2/ext2fs/pkg/engine"
	"github.com/weberc2/ext2fs/pkg/filesystem"
	"github.com/weberc2/ext2fs/pkg/mkfs"
	. "github.com/weberc2/ext2fs/pkg/types"
	pz "github.com/weberc2/httpeasy"
	pztest "github.com/weberc2/httpeasy/testsupport"
)

type wantedJSON[T any] struct{ value T }

func (wanted wantedJSON[T]) CompareData(data []byte) error {
	var found T
	if err := json.Unmarshal(data, &found); err != nil {
		return fmt.Errorf("unmarshaling response body `%s`: %w", data, err)
	}
	if diff := cmp.Diff(wanted.value, found); diff != "" {
		return fmt.Errorf("unexpected body (-wanted +found):\n%s", diff)
	}
	return nil
}

func floppy(t *testing.T) *filesystem.FileSystem {
	t.Helper()
	dev := device.NewMemory(mkfs.Floppy.DeviceBlocks())
	if err := mkfs.Format(dev, mkfs.Floppy); err != nil {
		t.Fatalf("formatting floppy: %v", err)
	}
	fs, err := filesystem.Open(dev, engine.Options{})
	if err != nil {
		t.Fatalf("opening floppy: %v", err)
	}
	fs.Now = func() time.Time { return time.Unix(1700000000, 0) }
	if _, err := fs.Create("/", "test", ModeRegular|0644); err != nil {
		t.Fatalf("creating `/test`: %v", err)
	}
	return fs
}

func TestServer(t *testing.T) {
	fs := floppy(t)
	server := Server{FileSystem: fs}

	stats, err := fs.Statfs()
	if err != nil {
		t.Fatalf("Statfs(): %v", err)
	}
	root, err := fs.Getattr("/")
	if err != nil {
		t.Fatalf("Getattr(`/`): %v", err)
	}
	entries, err := fs.Readdir("/")
	if err != nil {
		t.Fatalf("Readdir(`/`): %v", err)
	}
	rootInode, err := fs.Inode(InoRoot)
	if err != nil {
		t.Fatalf("Inode(`%d`): %v", InoRoot, err)
	}

	for _, testCase := range []struct {
		name         string
		handler      pz.Handler
		vars         map[string]string
		wantedStatus int
		wantedBody   pztest.WantedData
	}{
		{
			name:         "statfs",
			handler:      server.Statfs,
			wantedStatus: http.StatusOK,
			wantedBody:   wantedJSON[filesystem.Statfs]{stats},
		},
		{
			name:         "groups",
			handler:      server.Groups,
			wantedStatus: http.StatusOK,
			wantedBody:   wantedJSON[[]GroupDesc]{fs.Groups()},
		},
		{
			name:         "attr-root",
			handler:      server.Attr,
			vars:         map[string]string{"path": ""},
			wantedStatus: http.StatusOK,
			wantedBody:   wantedJSON[filesystem.Attr]{root},
		},
		{
			name:         "attr-missing",
			handler:      server.Attr,
			vars:         map[string]string{"path": "missing"},
			wantedStatus: http.StatusNotFound,
			wantedBody: &pz.HTTPError{
				Status:  http.StatusNotFound,
				Message: "not found",
			},
		},
		{
			name:         "readdir-root",
			handler:      server.Readdir,
			vars:         map[string]string{"path": ""},
			wantedStatus: http.StatusOK,
			wantedBody:   wantedJSON[[]DirEntry]{entries},
		},
		{
			name:         "readdir-file",
			handler:      server.Readdir,
			vars:         map[string]string{"path": "test"},
			wantedStatus: http.StatusBadRequest,
			wantedBody: &pz.HTTPError{
				Status:  http.StatusBadRequest,
				Message: "bad request: not a directory",
			},
		},
		{
			name:         "inode-root",
			handler:      server.Inode,
			vars:         map[string]string{"ino": "1"},
			wantedStatus: http.StatusOK,
			wantedBody:   wantedJSON[Inode]{rootInode},
		},
		{
			name:         "inode-nil",
			handler:      server.Inode,
			vars:         map[string]string{"ino": "0"},
			wantedStatus: http.StatusBadRequest,
			wantedBody: &pz.HTTPError{
				Status:  http.StatusBadRequest,
				Message: "bad request: invalid argument",
			},
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			rsp := testCase.handler(pz.Request{Vars: testCase.vars})
			if rsp.Status != testCase.wantedStatus {
				data, err := json.Marshal(rsp.Logging)
				if err != nil {
					t.Logf("failed to marshal handler logs: %v", err)
				}
				t.Logf("request logs: %s", data)
				t.Fatalf(
					"status: wanted `%d`; found `%d`",
					testCase.wantedStatus,
					rsp.Status,
				)
			}
			if err := pztest.CompareSerializer(
				testCase.wantedBody,
				rsp.Data,
			); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestServer_MalformedIno(t *testing.T) {
	server := Server{FileSystem: floppy(t)}
	rsp := server.Inode(pz.Request{Vars: map[string]string{"ino": "root"}})
	if rsp.Status != http.StatusBadRequest {
		t.Fatalf(
			"status: wanted `%d`; found `%d`",
			http.StatusBadRequest,
			rsp.Status,
		)
	}
}
