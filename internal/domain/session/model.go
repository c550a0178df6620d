package session

import (
	"fmt"
	"strings"

	"github.com/rpggio/browserhost/internal/domain/profile"
)

// PartitionKey identifies an isolated storage namespace.
type PartitionKey string

const (
	DefaultPartition   PartitionKey = "default"
	IncognitoPartition PartitionKey = "incognito"

	persistPrefix = "persist:"
)

// ProfilePartition returns the durable partition for a profile.
func ProfilePartition(profileID string) PartitionKey {
	return PartitionKey(persistPrefix + profileID)
}

// PartitionFor maps a launch decision to the primary partition.
func PartitionFor(dec profile.Decision) PartitionKey {
	switch dec.Kind {
	case profile.UseIncognito:
		return IncognitoPartition
	case profile.UseProfile:
		if dec.ProfileID != "" {
			return ProfilePartition(dec.ProfileID)
		}
	}
	return DefaultPartition
}

// Persistent reports whether the partition's storage survives restarts.
func (k PartitionKey) Persistent() bool {
	return k != IncognitoPartition && !strings.HasPrefix(string(k), "temp:")
}

// dirName returns a filesystem-safe name for the partition. Lower-case
// letters, digits and '-' are kept; every other byte becomes "_xx" in hex, so
// distinct keys never share a directory, even on case-insensitive disks.
func (k PartitionKey) dirName() string {
	var b strings.Builder
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}

// Info describes a live session.
type Info struct {
	Key        PartitionKey `json:"key"`
	StorageDir string       `json:"storage_dir,omitempty"`
	Blocking   bool         `json:"blocking"`
	Organic    bool         `json:"organic"`
}
