package superblock

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/ext2fs/pkg/device"
	"github.com/weberc2/ext2fs/pkg/encode"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// Store owns the single authoritative superblock. It lives in device block
// 1 whatever the filesystem block size is, and is cached in memory after the
// first read.
type Store struct {
	device device.Device
	mutex  sync.RWMutex
	cached *Superblock
}

func NewStore(dev device.Device) *Store {
	return &Store{device: dev}
}

// Read returns the cached superblock, loading and validating it from the
// device on first use.
func (s *Store) Read() (Superblock, error) {
	s.mutex.RLock()
	if s.cached != nil {
		defer s.mutex.RUnlock()
		return *s.cached, nil
	}
	s.mutex.RUnlock()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.cached == nil {
		var b [SuperblockSize]byte
		if err := s.device.ReadBlock(SuperblockDeviceBlock, &b); err != nil {
			return Superblock{}, fmt.Errorf("reading superblock: %w", err)
		}
		var sb Superblock
		if err := encode.DecodeSuperblock(&sb, &b); err != nil {
			return Superblock{}, fmt.Errorf("reading superblock: %w", err)
		}
		if err := sb.Validate(); err != nil {
			return Superblock{}, fmt.Errorf("reading superblock: %w", err)
		}
		s.cached = &sb
	}
	return *s.cached, nil
}

// Write persists the full record and then replaces the cached copy, so no
// reader observes a geometry that hasn't reached the device.
func (s *Store) Write(sb *Superblock) error {
	if err := sb.Validate(); err != nil {
		panic(fmt.Sprintf("writing invalid superblock: %v", err))
	}

	var b [SuperblockSize]byte
	encode.EncodeSuperblock(sb, &b)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.device.WriteBlock(SuperblockDeviceBlock, &b); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	clone := *sb
	s.cached = &clone

	logrus.WithFields(logrus.Fields{
		"freeBlocks": sb.FreeBlocksCount,
		"freeInodes": sb.FreeInodesCount,
	}).Trace("wrote superblock")
	return nil
}

// Update applies `f` to the current superblock and writes the result.
func (s *Store) Update(f func(sb *Superblock)) error {
	sb, err := s.Read()
	if err != nil {
		return fmt.Errorf("updating superblock: %w", err)
	}
	f(&sb)
	if err := s.Write(&sb); err != nil {
		return fmt.Errorf("updating superblock: %w", err)
	}
	return nil
}
