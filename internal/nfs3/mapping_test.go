package nfs3

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFtypeOfMode(t *testing.T) {
	cases := []struct {
		mode uint32
		want uint32
	}{
		{ModeReg, NF3Reg},
		{ModeDir, NF3Dir},
		{ModeBlk, NF3Blk},
		{ModeChr, NF3Chr},
		{ModeLnk, NF3Lnk},
		{ModeSock, NF3Sock},
		{ModeFifo, NF3Fifo},
		{0, NF3Fifo},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FtypeOfMode(c.mode|0644))
	}
}

func TestNFSModeOfModeIsLossy(t *testing.T) {
	assert.Equal(t, ModeRUSR|ModeWUSR|ModeRGRP, NFSModeOfMode(0644))
	assert.Equal(t, ModeRUSR|ModeWUSR|ModeRGRP|ModeXUSR, NFSModeOfMode(0755))
	assert.Equal(t, ModeRUSR|ModeWUSR|ModeRGRP|ModeXUSR, NFSModeOfMode(0777))
}

func TestNFSTimeOfTimespecValid(t *testing.T) {
	got, err := NFSTimeOfTimespec(Timespec{Sec: 1700000000, Nsec: 123})
	require.NoError(t, err)
	assert.Equal(t, NFSTime3{Seconds: 1700000000, Nseconds: 123}, got)
}

func TestNFSTimeOfTimespecRejectsNegative(t *testing.T) {
	_, err := NFSTimeOfTimespec(Timespec{Sec: -1, Nsec: 0})
	assert.ErrorIs(t, err, ErrInvalidTimespec)

	_, err = NFSTimeOfTimespec(Timespec{Sec: 0, Nsec: -1})
	assert.ErrorIs(t, err, ErrInvalidTimespec)
}

func TestNFSTimeOfTimespecRejectsOverflow(t *testing.T) {
	_, err := NFSTimeOfTimespec(Timespec{Sec: math.MaxUint32 + 1, Nsec: 0})
	assert.ErrorIs(t, err, ErrInvalidTimespec)
}

func validStat() *Stat {
	return &Stat{
		Ino:    7,
		Mode:   ModeReg | 0644,
		Nlink:  1,
		UID:    1000,
		GID:    1000,
		Size:   4096,
		Blocks: 8,
		Dev:    1,
		Atime:  Timespec{Sec: 100, Nsec: 0},
		Mtime:  Timespec{Sec: 200, Nsec: 0},
		Ctime:  Timespec{Sec: 300, Nsec: 0},
	}
}

func TestFattr3OfStat(t *testing.T) {
	st := validStat()
	attr, err := Fattr3OfStat(st)
	require.NoError(t, err)
	assert.Equal(t, NF3Reg, attr.Type)
	assert.Equal(t, uint32(ModeRUSR|ModeWUSR|ModeRGRP), attr.Mode)
	assert.Equal(t, st.Size, attr.Size)
	assert.Equal(t, st.Blocks*512, attr.Used)
	assert.Equal(t, st.Dev, attr.Fsid)
	assert.Equal(t, st.Ino, attr.Fileid)
	assert.Equal(t, uint32(200), attr.Mtime.Seconds)
}

func TestFattr3OfStatRejectsBadTimestamp(t *testing.T) {
	st := validStat()
	st.Ctime.Sec = -1
	_, err := Fattr3OfStat(st)
	assert.ErrorIs(t, err, ErrInvalidTimespec)
}

func TestPostOpAttrOf(t *testing.T) {
	assert.NotNil(t, PostOpAttrOf(validStat(), nil))
	assert.Nil(t, PostOpAttrOf(nil, nil))
	assert.Nil(t, PostOpAttrOf(validStat(), assert.AnError))

	bad := validStat()
	bad.Atime.Sec = -1
	assert.Nil(t, PostOpAttrOf(bad, nil))
}

func TestPreOpAttrOf(t *testing.T) {
	st := validStat()
	wcc := PreOpAttrOf(st)
	require.NotNil(t, wcc)
	assert.Equal(t, st.Size, wcc.Size)
	assert.Equal(t, uint32(200), wcc.Mtime.Seconds)
	assert.Equal(t, uint32(300), wcc.Ctime.Seconds)

	assert.Nil(t, PreOpAttrOf(nil))

	bad := validStat()
	bad.Mtime.Sec = -1
	assert.Nil(t, PreOpAttrOf(bad))
}
