package validation

import (
	"errors"
	"testing"
)

func TestValidatePorts(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"single", "80", false},
		{"list", "1,65535,80", false},
		{"leading zero", "0080", false},
		{"duplicates", "80,80", false},

		{"zero", "0", true},
		{"too high", "65536", true},
		{"empty", "", true},
		{"letters", "abc", true},
		{"negative", "-1", true},
		{"plus sign", "+80", true},
		{"empty element", "80,,443", true},
		{"trailing comma", "80,", true},
		{"range syntax", "80-90", true},
		{"space after comma", "80, 443", true},
		{"padded token", " 80", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePorts(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePorts(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestParsePorts_KeepsOrder(t *testing.T) {
	got, err := ParsePorts("443,80,8080")
	if err != nil {
		t.Fatalf("ParsePorts() error = %v", err)
	}
	want := []int{443, 80, 8080}
	if len(got) != len(want) {
		t.Fatalf("ParsePorts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParsePorts()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestValidateAddresses(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"ipv4", "10.0.0.1", false},
		{"ipv4 edges", "0.0.0.0,255.255.255.255", false},
		{"ipv6 compressed", "2001:db8::1", false},
		{"ipv6 full", "2001:0db8:0000:0000:0000:0000:0000:0001", false},
		{"ipv6 loopback", "::1", false},
		{"ipv6 bracketed", "[::1]", false},
		{"ipv6 embedded ipv4", "::ffff:192.0.2.1", false},
		{"mixed families", "1.1.1.1,2001:db8::1", false},
		{"spaces", " 1.1.1.1 , 2.2.2.2 ", false},

		{"octet out of range", "1.1.1.1,256.1.1.1", true},
		{"too few octets", "1.1.1", true},
		{"hostname", "example.com", true},
		{"cidr", "10.0.0.0/8", true},
		{"double compression", "2001::db8::1", true},
		{"zone", "fe80::1%eth0", true},
		{"bracketed ipv4", "[10.0.0.1]", true},
		{"empty", "", true},
		{"empty element", "1.1.1.1,", true},
		{"with port", "1.1.1.1:80", true},
		{"leading zero octet", "010.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddresses(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddresses(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestParseAddresses_StripsBrackets(t *testing.T) {
	got, err := ParseAddresses("[2001:db8::1], 10.0.0.1")
	if err != nil {
		t.Fatalf("ParseAddresses() error = %v", err)
	}
	if len(got) != 2 || got[0] != "2001:db8::1" || got[1] != "10.0.0.1" {
		t.Errorf("ParseAddresses() = %v", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"tcp", "tcp", false},
		{"HTTP", "http", false},
		{"Tcp", "tcp", false},
		{"", "tcp", false},
		{"udp", "", true},
		{"https", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidateHealthCheckPort(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"none", 0, false},
		{"8080", 8080, false},
		{"1", 1, false},

		{"None", 0, true},
		{"NONE", 0, true},
		{"", 0, true},
		{"0", 0, true},
		{"65536", 0, true},
		{"80,443", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseHealthCheckPort(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHealthCheckPort(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHealthCheckPort(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestValidationError_CarriesValue(t *testing.T) {
	err := ValidatePorts("80,99999")

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Field != "port" || verr.Value != "99999" {
		t.Errorf("ValidationError = %+v, want field=port value=99999", verr)
	}
}
