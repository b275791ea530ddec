package common

import (
	"bytes"
	"os"
	"reflect"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cpuParseTests = []struct {
	line         string // input
	expected     []uint // expected result
	expectedCode ErrorCode
}{
	{"", []uint{}, -1},
	{"1-5", []uint{1, 2, 3, 4, 5}, -1},
	{"1,10-13,9", []uint{1, 10, 11, 12, 13, 9}, -1},
	{"10-14,13-15", []uint{10, 11, 12, 13, 14, 13, 14, 15}, -1},
	{"1-3,6-", []uint{1, 2, 3}, ParseCPUListErr},
	{"-1", []uint{}, ParseCPUListErr},
	{"10-6", []uint{}, InvalidCPURangeErr},
	{"1-3,10-6", []uint{1, 2, 3}, InvalidCPURangeErr},
}

func TestParseCPUs(t *testing.T) {
	for _, tt := range cpuParseTests {
		actual, err := parseCPUs(tt.line)
		if code := GetNFErrorCode(err); code != tt.expectedCode {
			t.Errorf("parseCPUs(\"%s\"): unexpected error code:\ngot: %v (%v),\nwant: %v\n", tt.line, code, err, tt.expectedCode)
			continue
		}
		if !reflect.DeepEqual(actual, tt.expected) {
			t.Errorf("parseCPUs(\"%s\"): got %v, want %v", tt.line, actual, tt.expected)
		}
	}
}

func TestParseCPUsTruncates(t *testing.T) {
	cpus, err := ParseCPUs("0,0,0", 4)
	require.NoError(t, err)
	assert.Equal(t, []uint{0}, cpus)

	_, err = ParseCPUs("100000", 4)
	assert.Equal(t, MaxCPUExceedErr, GetNFErrorCode(err))
}

var removeDuplicatesTests = []struct {
	cpus     []uint
	expected []uint
}{
	{[]uint{}, []uint{}},
	{[]uint{1, 2, 100, 100, 2, 100}, []uint{1, 2, 100}},
	{[]uint{1, 2, 100, 3}, []uint{1, 2, 100, 3}},
	{[]uint{1, 2, 1, 100, 100, 3}, []uint{1, 2, 100, 3}},
}

func TestRemoveDuplicates(t *testing.T) {
	for _, tt := range removeDuplicatesTests {
		actual := removeDuplicates(tt.cpus)
		if !reflect.DeepEqual(actual, tt.expected) {
			t.Errorf("removeDuplicates(\"%v\"): got %v, want %v", tt.cpus, actual, tt.expected)
		}
	}
}

var portMaskTests = []struct {
	mask     string
	expected []uint16
	ok       bool
}{
	{"0x3", []uint16{0, 1}, true},
	{"3", []uint16{0, 1}, true},
	{"0xa", []uint16{1, 3}, true},
	{"0x7", []uint16{0, 1, 2}, true},
	{"0", nil, false},
	{"zz", nil, false},
}

func TestParsePortMask(t *testing.T) {
	for _, tt := range portMaskTests {
		ports, err := ParsePortMask(tt.mask)
		if !tt.ok {
			assert.Equal(t, BadArgument, GetNFErrorCode(err), tt.mask)
			continue
		}
		require.NoError(t, err, tt.mask)
		assert.Equal(t, tt.expected, ports, tt.mask)
	}
}

var errorCauseTests = []struct {
	testError        error
	expectedCause    error
	expectedGetNFErr *NFError
	expectedCode     ErrorCode
}{
	{&strconv.NumError{Func: "Atoi", Num: "", Err: strconv.ErrSyntax}, nil, nil, -1},

	{WrapWithNFError(&strconv.NumError{Func: "Atoi", Num: "", Err: strconv.ErrSyntax}, "failed to parse cpu", ParseCPUListErr),
		&strconv.NumError{Func: "Atoi", Num: "", Err: strconv.ErrSyntax},
		&(NFError{CauseErr: &strconv.NumError{Func: "Atoi", Num: "", Err: strconv.ErrSyntax}, Message: "failed to parse cpu", Code: ParseCPUListErr}),
		ParseCPUListErr},

	{WrapWithNFError(nil, "two ports are required", WrongPortNumber),
		&(NFError{CauseErr: nil, Message: "two ports are required", Code: WrongPortNumber}),
		&(NFError{CauseErr: nil, Message: "two ports are required", Code: WrongPortNumber}), WrongPortNumber},

	{nil, nil, nil, -1},
}

// TestErrorCause checks GetNFError, GetNFErrorCode, and Cause methods.
func TestErrorCause(t *testing.T) {
	for _, tt := range errorCauseTests {
		if !reflect.DeepEqual(GetNFError(tt.testError), tt.expectedGetNFErr) {
			t.Errorf("GetNFError: got: %v, want: %v", GetNFError(tt.testError), tt.expectedGetNFErr)
		}
		if !reflect.DeepEqual(GetNFError(tt.testError).Cause(), tt.expectedCause) {
			t.Errorf("GetNFError.Cause: got: %v, want: %v", GetNFError(tt.testError).Cause(), tt.expectedCause)
		}
		if GetNFErrorCode(tt.testError) != tt.expectedCode {
			t.Errorf("NFError code: got: %v, want: %v\n", GetNFErrorCode(tt.testError), tt.expectedCode)
		}
	}
}

func TestLogTypeGating(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	old := GetLogType()
	defer func() {
		SetLogType(old)
		SetLogOutput(os.Stderr)
	}()

	SetLogType(No | Initialization)
	LogDebug(Debug, "hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, "port 1 is down", LogError(Initialization, "port", 1, "is down"))
	assert.Contains(t, buf.String(), "port 1 is down")
	assert.False(t, LogTypeEnabled(Verbose))
}
