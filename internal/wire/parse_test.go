package wire

import (
	"errors"
	"testing"
)

func TestParseLine_ValidRecords(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "tag tx",
			line: "role=TAG evt=TX dev_ts=1099511627775",
			want: Event{Role: RoleTag, Kind: KindTX, DeviceTS: 1099511627775},
		},
		{
			name: "anchor rx",
			line: "role=ANCHOR evt=RX dev_ts=42",
			want: Event{Role: RoleAnchor, Kind: KindRX, DeviceTS: 42},
		},
		{
			name: "range with host_ts",
			line: "role=TAG evt=RANGE host_ts=1718031822",
			want: Event{Role: RoleTag, Kind: KindRange, DeviceHostTS: 1718031822},
		},
		{
			name: "range without host_ts",
			line: "role=ANCHOR evt=RANGE",
			want: Event{Role: RoleAnchor, Kind: KindRange},
		},
		{
			name: "heartbeat",
			line: "role=ANCHOR evt=HEARTBEAT host_ts=0",
			want: Event{Role: RoleAnchor, Kind: KindHeartbeat},
		},
		{
			name: "alias txok",
			line: "role=TAG evt=TXOK dev_ts=7",
			want: Event{Role: RoleTag, Kind: KindTX, DeviceTS: 7},
		},
		{
			name: "alias tx_done",
			line: "role=ANCHOR evt=TX_DONE dev_ts=8",
			want: Event{Role: RoleAnchor, Kind: KindTX, DeviceTS: 8},
		},
		{
			name: "alias rv",
			line: "role=TAG evt=RV dev_ts=9",
			want: Event{Role: RoleTag, Kind: KindRX, DeviceTS: 9},
		},
		{
			name: "alias rcv",
			line: "role=TAG evt=RCV dev_ts=10",
			want: Event{Role: RoleTag, Kind: KindRX, DeviceTS: 10},
		},
		{
			name: "alias recv",
			line: "role=ANCHOR evt=RECV dev_ts=11",
			want: Event{Role: RoleAnchor, Kind: KindRX, DeviceTS: 11},
		},
		{
			name: "alias hb",
			line: "role=TAG evt=HB host_ts=0",
			want: Event{Role: RoleTag, Kind: KindHeartbeat},
		},
		{
			name: "unknown keys ignored",
			line: "role=TAG evt=TX dev_ts=5 rssi=-81 fw=1.4.2",
			want: Event{Role: RoleTag, Kind: KindTX, DeviceTS: 5},
		},
		{
			name: "repeated key keeps last value",
			line: "role=TAG evt=TX dev_ts=1 dev_ts=2",
			want: Event{Role: RoleTag, Kind: KindTX, DeviceTS: 2},
		},
		{
			name: "extra whitespace",
			line: "  role=ANCHOR   evt=RX  dev_ts=3 ",
			want: Event{Role: RoleAnchor, Kind: KindRX, DeviceTS: 3},
		},
		{
			name: "trailing crlf",
			line: "role=TAG evt=TX dev_ts=4\r\n",
			want: Event{Role: RoleTag, Kind: KindTX, DeviceTS: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine(%q) error = %v", tt.line, err)
			}
			if got.Role != tt.want.Role {
				t.Errorf("Role = %v, want %v", got.Role, tt.want.Role)
			}
			if got.Kind != tt.want.Kind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.want.Kind)
			}
			if got.DeviceTS != tt.want.DeviceTS {
				t.Errorf("DeviceTS = %d, want %d", got.DeviceTS, tt.want.DeviceTS)
			}
			if got.DeviceHostTS != tt.want.DeviceHostTS {
				t.Errorf("DeviceHostTS = %d, want %d", got.DeviceHostTS, tt.want.DeviceHostTS)
			}
			if got.Raw == "" {
				t.Error("Raw not preserved")
			}
		})
	}
}

func TestParseLine_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{"empty line", "", ErrEmptyLine},
		{"whitespace only", "   \r\n", ErrEmptyLine},
		{"no key=value tokens", "garbage noise here", ErrMissingRole},
		{"missing role", "evt=TX dev_ts=1", ErrMissingRole},
		{"unknown role", "role=BEACON evt=TX dev_ts=1", ErrUnknownRole},
		{"lowercase role rejected", "role=tag evt=TX dev_ts=1", ErrUnknownRole},
		{"missing evt", "role=TAG dev_ts=1", ErrMissingKind},
		{"unknown evt", "role=TAG evt=PING dev_ts=1", ErrUnknownKind},
		{"lowercase evt rejected", "role=TAG evt=tx dev_ts=1", ErrUnknownKind},
		{"tx missing dev_ts", "role=TAG evt=TX", ErrMissingDeviceTimestamp},
		{"rx missing dev_ts", "role=ANCHOR evt=RX host_ts=99", ErrMissingDeviceTimestamp},
		{"garbled dev_ts", "role=TAG evt=TX dev_ts=abc", ErrBadDeviceTimestamp},
		{"negative dev_ts", "role=TAG evt=TX dev_ts=-1", ErrBadDeviceTimestamp},
		{"fractional dev_ts", "role=TAG evt=RX dev_ts=12.5", ErrBadDeviceTimestamp},
		{"garbled host_ts on range", "role=TAG evt=RANGE host_ts=xyz", ErrBadHostTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			if err == nil {
				t.Fatalf("ParseLine(%q) expected error, got nil", tt.line)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseLine(%q) error = %v, want %v", tt.line, err, tt.wantErr)
			}
		})
	}
}

func TestParseLine_HeartbeatCarriesNoDeviceTS(t *testing.T) {
	ev, err := ParseLine("role=TAG evt=HEARTBEAT host_ts=0 dev_ts=123")
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}
	// dev_ts on a heartbeat is firmware noise and must not be interpreted.
	if ev.DeviceTS != 0 {
		t.Errorf("DeviceTS = %d, want 0", ev.DeviceTS)
	}
}

func TestRole_Opposite(t *testing.T) {
	if RoleTag.Opposite() != RoleAnchor {
		t.Error("RoleTag.Opposite() != RoleAnchor")
	}
	if RoleAnchor.Opposite() != RoleTag {
		t.Error("RoleAnchor.Opposite() != RoleTag")
	}
}

func TestRoleAndKind_Strings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{RoleTag.String(), "TAG"},
		{RoleAnchor.String(), "ANCHOR"},
		{KindTX.String(), "TX"},
		{KindRX.String(), "RX"},
		{KindRange.String(), "RANGE"},
		{KindHeartbeat.String(), "HEARTBEAT"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}
