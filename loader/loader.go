// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader reads program images into memory. It understands raw
// little-endian memory images and paper tapes punched in the absolute
// loader format.
package loader

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Errors
var (
	ErrChecksum = errors.New("block checksum mismatch")
	ErrFormat   = errors.New("malformed absolute loader tape")
	ErrEmpty    = errors.New("image is empty")
)

// A Block is a run of bytes loaded at consecutive addresses.
type Block struct {
	Addr uint16
	Data []byte
}

// Words returns the block's data as little-endian words. An odd trailing
// byte is padded with zero.
func (b *Block) Words() []uint16 {
	data := b.Data
	if len(data)&1 != 0 {
		data = append(data[:len(data):len(data)], 0)
	}
	words := make([]uint16, len(data)/2)
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return words
}

// An Image is a program ready to be deposited into memory.
type Image struct {
	Blocks    []Block
	Start     uint16 // transfer address
	AutoStart bool   // whether Start should be jumped to after loading
}

// Size returns the total number of bytes in the image.
func (img *Image) Size() int {
	n := 0
	for _, b := range img.Blocks {
		n += len(b.Data)
	}
	return n
}

// The Memory interface is the destination of Deposit. Both *bus.Bus and
// *bus.Port satisfy it.
type Memory interface {
	WriteWord(addr uint16, v uint16) error
	WriteByte(addr uint16, v byte) error
}

// Deposit writes every block of the image into m. Aligned byte pairs are
// written as words.
func (img *Image) Deposit(m Memory) error {
	for _, b := range img.Blocks {
		addr, data := b.Addr, b.Data
		for len(data) > 0 {
			at := addr
			var err error
			if addr&1 == 0 && len(data) >= 2 {
				err = m.WriteWord(addr, binary.LittleEndian.Uint16(data))
				addr, data = addr+2, data[2:]
			} else {
				err = m.WriteByte(addr, data[0])
				addr, data = addr+1, data[1:]
			}
			if err != nil {
				return fmt.Errorf("deposit at %06o: %w", at, err)
			}
		}
	}
	return nil
}

// ReadRaw reads a raw memory image to be loaded at address base. The image
// does not start automatically.
func ReadRaw(r io.Reader, base uint16) (*Image, error) {
	data, err := io.ReadAll(r)
	switch {
	case err != nil:
		return nil, err
	case len(data) == 0:
		return nil, ErrEmpty
	case int(base)+len(data) > 0x10000:
		return nil, fmt.Errorf("%w: %d bytes do not fit at %06o", ErrFormat, len(data), base)
	}
	return &Image{Blocks: []Block{{Addr: base, Data: data}}, Start: base}, nil
}

// ReadAbsolute reads a paper tape in the absolute loader format. Each
// block on the tape is
//
//	001 000 count-lo count-hi addr-lo addr-hi data... checksum
//
// where count includes the six header bytes and the checksum makes the sum
// of all the block's bytes zero. Blank leader between blocks is skipped. A
// block with no data ends the tape; its address is the transfer address,
// and an odd transfer address means the program does not start itself.
func ReadAbsolute(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)
	img := &Image{}

	for {
		if err := skipLeader(br); err != nil {
			if errors.Is(err, io.EOF) && len(img.Blocks) > 0 {
				return img, nil
			}
			if errors.Is(err, io.EOF) {
				return nil, ErrEmpty
			}
			return nil, err
		}

		var hdr [6]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			return nil, truncated(err)
		}
		if hdr[1] != 0 {
			return nil, fmt.Errorf("%w: bad block header %03o %03o", ErrFormat, hdr[0], hdr[1])
		}
		count := int(binary.LittleEndian.Uint16(hdr[2:]))
		addr := binary.LittleEndian.Uint16(hdr[4:])
		if count < len(hdr) {
			return nil, fmt.Errorf("%w: block count %d at %06o", ErrFormat, count, addr)
		}

		body := make([]byte, count-len(hdr)+1)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, truncated(err)
		}

		var sum byte
		for _, c := range hdr {
			sum += c
		}
		for _, c := range body {
			sum += c
		}
		if sum != 0 {
			return nil, fmt.Errorf("%w: block at %06o", ErrChecksum, addr)
		}

		data := body[:len(body)-1]
		if len(data) == 0 {
			img.Start = addr
			img.AutoStart = addr&1 == 0
			return img, nil
		}
		img.Blocks = append(img.Blocks, Block{Addr: addr, Data: data})
	}
}

// skipLeader consumes blank tape up to the 001 that starts a block.
func skipLeader(br *bufio.Reader) error {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return err
		}
		switch c {
		case 0:
		case 1:
			return br.UnreadByte()
		default:
			return fmt.Errorf("%w: unexpected frame %03o", ErrFormat, c)
		}
	}
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: tape ends inside a block", ErrFormat)
	}
	return err
}
