// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nc

// Arithmetic in GF(2^8) with the primitive polynomial x^8+x^4+x^3+x^2+1.
const gfPoly = 0x11d

var (
	gfExp [512]byte
	gfLog [256]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		gfExp[i] = byte(x)
		gfLog[x] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= gfPoly
		}
	}
	for i := 255; i < len(gfExp); i++ {
		gfExp[i] = gfExp[i-255]
	}
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+int(gfLog[b])]
}

// gfInv panics on zero like division by zero does.
func gfInv(a byte) byte {
	if a == 0 {
		panic("nc: inverse of zero")
	}
	return gfExp[255-int(gfLog[a])]
}

// mulAddRow sets dst = dst + c*src.
func mulAddRow(dst, src []byte, c byte) {
	if c == 0 {
		return
	}
	lc := int(gfLog[c])
	for i, s := range src {
		if s != 0 {
			dst[i] ^= gfExp[lc+int(gfLog[s])]
		}
	}
}

// scaleRow sets row = c*row.
func scaleRow(row []byte, c byte) {
	if c == 1 {
		return
	}
	for i, s := range row {
		row[i] = gfMul(s, c)
	}
}
