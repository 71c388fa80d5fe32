package cloudinit

import (
	"bytes"
	"fmt"

	"github.com/kdomanski/iso9660"
)

// GenerateISO builds the NoCloud seed ISO for a run: user-data (build
// user, SSH key, project mount), meta-data (instance identity), and
// network-config (netplan v2) in the image root, under the CIDATA
// volume label the NoCloud datasource looks for.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
func GenerateISO(in Input) ([]byte, error) {
	if in.Run == nil {
		return nil, fmt.Errorf("run cannot be nil")
	}

	userData, err := GenerateUserData(in)
	if err != nil {
		return nil, fmt.Errorf("failed to generate user-data: %w", err)
	}
	metaData, err := GenerateMetaData(in)
	if err != nil {
		return nil, fmt.Errorf("failed to generate meta-data: %w", err)
	}
	networkConfig, err := GenerateNetworkConfig(in)
	if err != nil {
		return nil, fmt.Errorf("failed to generate network-config: %w", err)
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	defer func() { _ = writer.Cleanup() }()

	files := []struct {
		name    string
		content string
	}{
		{"user-data", userData},
		{"meta-data", metaData},
		{"network-config", networkConfig},
	}
	for _, f := range files {
		if err := writer.AddFile(bytes.NewReader([]byte(f.content)), f.name); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.name, err)
		}
	}

	var buf bytes.Buffer
	// NoCloud requires the uppercase CIDATA volume identifier.
	if err := writer.WriteTo(&buf, "CIDATA"); err != nil {
		return nil, fmt.Errorf("failed to write ISO image: %w", err)
	}

	return buf.Bytes(), nil
}
