package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/weberc2/ext2fs/pkg/filesystem"
	"github.com/weberc2/ext2fs/pkg/mkfs"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "ext2fs.yaml")
	require.NoError(t, os.WriteFile(
		configFile,
		[]byte("backend: memory\nimage: floppy.img\nlogLevel: debug\n"),
		0644,
	))
	t.Setenv("EXT2FS_CONFIG_FILE", configFile)
	t.Setenv("EXT2FS_VOLUME", "My Floppy")
	t.Setenv("EXT2FS_INODE_CACHE_CAPACITY", "8")

	c, err := LoadConfig()
	require.NoError(t, err)

	wanted := DefaultConfig()
	wanted.Backend = BackendMemory
	wanted.Image = "floppy.img"
	wanted.LogLevel = "debug"
	wanted.Volume = "My Floppy"
	wanted.InodeCacheCapacity = 8
	if diff := cmp.Diff(&wanted, c); diff != "" {
		t.Fatalf("LoadConfig(): (-wanted +found):\n%s", diff)
	}
	require.NoError(t, c.Validate())
}

func TestLoadConfig_UnknownField(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "ext2fs.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("bogus: 1\n"), 0644))
	t.Setenv("EXT2FS_CONFIG_FILE", configFile)

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	for _, testCase := range []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(c *Config) {}},
		{
			name:    "unknown-backend",
			modify:  func(c *Config) { c.Backend = "tape" },
			wantErr: true,
		},
		{
			name:    "s3-without-bucket",
			modify:  func(c *Config) { c.Backend = BackendS3 },
			wantErr: true,
		},
		{
			name:    "unknown-geometry",
			modify:  func(c *Config) { c.Geometry = "zip-drive" },
			wantErr: true,
		},
		{
			name:    "bad-log-level",
			modify:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: true,
		},
		{
			name:   "floppy-plus",
			modify: func(c *Config) { c.Geometry = "floppy-plus" },
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			c := DefaultConfig()
			testCase.modify(&c)
			err := c.Validate()
			if testCase.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestMemoryBackend_PutCat(t *testing.T) {
	c := DefaultConfig()
	c.Backend = BackendMemory
	c.Image = filepath.Join(t.TempDir(), "floppy.img")
	require.NoError(t, c.Validate())

	dev, closeDev, err := c.OpenDevice(true)
	require.NoError(t, err)
	require.NoError(t, mkfs.Format(dev, c.GeometryPreset()))
	require.NoError(t, closeDev())

	info, err := os.Stat(c.Image)
	require.NoError(t, err)
	require.Equal(t, int64(mkfs.Floppy.DeviceBlocks())*1024, info.Size())

	contents := bytes.Repeat([]byte("ext2"), 1000)
	require.NoError(t, withOpenFS(&c, func(fs *filesystem.FileSystem) error {
		return put(fs, bytes.NewReader(contents), "/hello")
	}))

	var buf bytes.Buffer
	require.NoError(t, withOpenFS(&c, func(fs *filesystem.FileSystem) error {
		return cat(fs, "/hello", &buf)
	}))
	require.Equal(t, contents, buf.Bytes())
}
