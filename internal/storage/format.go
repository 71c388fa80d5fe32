package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// qcow2Magic is "QFI\xfb", the first four bytes of every qcow2 header.
const qcow2Magic = 0x514649fb

// bootSignature is the 0x55aa marker at the end of the first 512-byte
// sector. GPT disks carry it too, inside the protective MBR.
const bootSignature = 0xaa55

// DetectImageFormat sniffs a disk image file and reports whether it is a
// qcow2 image or a bootable raw image. Anything else is rejected: a base
// image that is neither carries no bootable OS and would only produce a
// VM that hangs in firmware.
func DetectImageFormat(filePath string) (VolumeFormat, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var header [4]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return "", fmt.Errorf("file too small to be valid image (< 4 bytes): %w", err)
	}
	if binary.BigEndian.Uint32(header[:]) == qcow2Magic {
		return VolumeFormatQCOW2, nil
	}

	// Raw images have no header of their own, so the only sanity check
	// available is the boot sector signature at offset 510.
	var sig [2]byte
	if _, err := f.ReadAt(sig[:], 510); err != nil {
		return "", fmt.Errorf("file too small for boot sector (< 512 bytes): %w", err)
	}
	if binary.LittleEndian.Uint16(sig[:]) == bootSignature {
		return VolumeFormatRaw, nil
	}

	return "", fmt.Errorf("unsupported or invalid image: not qcow2 and missing boot sector signature (0x55aa at offset 510)")
}
