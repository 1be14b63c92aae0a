// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package p02

// Checksum computes the P02 block check character for an unescaped frame
// body (source through the last data byte). The delimiters and the BCC
// itself are never included.
func Checksum(body []byte) byte {
	bcc := byte(bccSeed)
	for _, b := range body {
		bcc ^= b
	}
	return bcc
}
