package main

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/weberc2/ext2fs/pkg/device"
	"github.com/weberc2/ext2fs/pkg/engine"
	"github.com/weberc2/ext2fs/pkg/mkfs"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "EXT2FS"
	appName      = "ext2fs"

	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend            string `envconfig:"EXT2FS_BACKEND"              yaml:"backend"`
	Image              string `envconfig:"EXT2FS_IMAGE"                yaml:"image"`
	Volume             string `envconfig:"EXT2FS_VOLUME"               yaml:"volume"`
	Geometry           string `envconfig:"EXT2FS_GEOMETRY"             yaml:"geometry"`
	S3Bucket           string `envconfig:"EXT2FS_S3_BUCKET"            yaml:"s3Bucket"`
	S3Region           string `envconfig:"EXT2FS_S3_REGION"            yaml:"s3Region"`
	PGDSN              string `envconfig:"EXT2FS_PG_DSN"               yaml:"pgDSN"`
	LogLevel           string `envconfig:"EXT2FS_LOG_LEVEL"            yaml:"logLevel"`
	InspectAddr        string `envconfig:"EXT2FS_INSPECT_ADDR"         yaml:"inspectAddr"`
	InodeCacheCapacity int    `envconfig:"EXT2FS_INODE_CACHE_CAPACITY" yaml:"inodeCacheCapacity"`
}

func DefaultConfig() Config {
	return Config{
		Backend:            BackendFile,
		Image:              "ext2.img",
		Volume:             appName,
		Geometry:           "floppy",
		S3Region:           "us-east-1",
		LogLevel:           "info",
		InspectAddr:        "127.0.0.1:8080",
		InodeCacheCapacity: 64,
	}
}

// LoadConfig layers the config file (`$EXT2FS_CONFIG_FILE`, default
// `~/.config/ext2fs.yaml`) and then the environment over the defaults.
func LoadConfig() (*Config, error) {
	configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE")
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.Getenv("HOME")
		}
		configFile = filepath.Join(home, ".config", appName+".yaml")
	}

	c := DefaultConfig()
	data, err := ioutil.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config file: %w", err)
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	return &c, nil
}

func (c *Config) Validate() error {
	if y, e := func() (string, string) {
		if c.Volume == "" {
			return "volume", "VOLUME"
		}
		if c.Geometry == "" {
			return "geometry", "GEOMETRY"
		}
		switch c.Backend {
		case BackendFile, BackendMemory:
			if c.Image == "" {
				return "image", "IMAGE"
			}
		case BackendS3:
			if c.S3Bucket == "" {
				return "s3Bucket", "S3_BUCKET"
			}
		case BackendPostgres:
		default:
			return "backend", "BACKEND"
		}
		return "", ""
	}(); y != "" {
		return fmt.Errorf(
			"missing or invalid configuration: %s / %s_%s",
			y,
			envVarPrefix,
			e,
		)
	}
	if _, err := mkfs.Preset(c.Geometry); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}
	return nil
}

func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
}

func (c *Config) GeometryPreset() mkfs.Geometry {
	geometry, err := mkfs.Preset(c.Geometry)
	if err != nil {
		panic(fmt.Sprintf("geometry preset not validated: %v", err))
	}
	geometry.VolumeName = c.Volume
	return geometry
}

func (c *Config) EngineOptions() engine.Options {
	return engine.Options{InodeCacheCapacity: c.InodeCacheCapacity}
}

// OpenDevice opens the configured backend sized for the configured
// geometry. `create` starts from an empty device instead of an existing
// image. The returned close function persists the device where needed.
func (c *Config) OpenDevice(create bool) (device.Device, func() error, error) {
	blocks := c.GeometryPreset().DeviceBlocks()
	noop := func() error { return nil }

	switch c.Backend {
	case BackendFile:
		var (
			f   *device.File
			err error
		)
		if create {
			f, err = device.CreateFile(c.Image, blocks)
		} else {
			f, err = device.OpenFile(c.Image)
		}
		if err != nil {
			return nil, nil, err
		}
		return f, func() error {
			if err := f.Sync(); err != nil {
				f.Close()
				return fmt.Errorf("syncing image `%s`: %w", c.Image, err)
			}
			return f.Close()
		}, nil

	case BackendMemory:
		m := device.NewMemory(blocks)
		if !create {
			if err := loadImage(m, c.Image); err != nil {
				return nil, nil, err
			}
		}
		return m, func() error { return saveImage(m, c.Image) }, nil

	case BackendS3:
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(c.S3Region),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating AWS session: %w", err)
		}
		return device.NewS3(s3.New(sess), c.S3Bucket, c.Volume, blocks), noop, nil

	case BackendPostgres:
		var (
			d   *device.Postgres
			err error
		)
		if c.PGDSN != "" {
			d, err = device.OpenPostgres(c.PGDSN, c.Volume, blocks)
		} else {
			d, err = device.OpenPostgresEnv(c.Volume, blocks)
		}
		if err != nil {
			return nil, nil, err
		}
		if create {
			if err := d.DropTable(); err != nil {
				d.Close()
				return nil, nil, err
			}
		}
		if err := d.EnsureTable(); err != nil {
			d.Close()
			return nil, nil, err
		}
		return d, d.Close, nil
	}
	panic(fmt.Sprintf("backend not validated: `%s`", c.Backend))
}

func loadImage(m *device.Memory, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading image `%s`: %w", path, err)
	}
	defer f.Close()
	if _, err := m.ReadFrom(f); err != nil {
		return fmt.Errorf("loading image `%s`: %w", path, err)
	}
	return nil
}

func saveImage(m *device.Memory, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving image `%s`: %w", path, err)
	}
	if _, err := m.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("saving image `%s`: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("saving image `%s`: %w", path, err)
	}
	return nil
}
