// Package identity resolves device identifiers to human-readable display
// names for notification text.
package identity

import (
	"errors"
	"fmt"

	"github.com/benmeehan/geofence-monitor/pkg/file"
)

// ErrDeviceNotFound is returned when the directory has no entry for a
// device.
var ErrDeviceNotFound = errors.New("device not found in directory")

// DeviceDirectory defines the lookup interface for device display names.
type DeviceDirectory interface {
	LookupName(deviceID string) (string, error)
}

// DeviceRecord is one directory entry.
type DeviceRecord struct {
	ID   string `json:"device_id"`
	Name string `json:"device_name"`
}

// FileDirectory is a DeviceDirectory backed by a JSON file holding a
// list of device records. The file is read once at load time.
type FileDirectory struct {
	directoryFile string
	fileOps       file.FileOperations
	names         map[string]string
}

// NewFileDirectory creates a directory backed by the given file path.
func NewFileDirectory(filePath string, fileOps file.FileOperations) *FileDirectory {
	return &FileDirectory{
		directoryFile: filePath,
		fileOps:       fileOps,
	}
}

// Load reads the directory file. A missing file is not an error; the
// directory just resolves nothing and lookups degrade downstream.
func (d *FileDirectory) Load() error {
	exists, err := d.fileOps.IsFileExists(d.directoryFile)
	if err != nil {
		return fmt.Errorf("failed to stat device directory: %w", err)
	}
	d.names = make(map[string]string)
	if !exists {
		return nil
	}

	var records []DeviceRecord
	if err := d.fileOps.ReadJsonFile(d.directoryFile, &records); err != nil {
		return fmt.Errorf("failed to read device directory: %w", err)
	}
	for _, r := range records {
		if r.ID != "" {
			d.names[r.ID] = r.Name
		}
	}
	return nil
}

// LookupName returns the display name for a device, or ErrDeviceNotFound.
func (d *FileDirectory) LookupName(deviceID string) (string, error) {
	name, ok := d.names[deviceID]
	if !ok || name == "" {
		return "", ErrDeviceNotFound
	}
	return name, nil
}
