package main

import "testing"

func TestParseDeviceSpec(t *testing.T) {
	cases := []struct {
		spec      string
		name      string
		instance  int
		wantError bool
	}{
		{"uart0", "uart", 0, false},
		{"vioblk12", "vioblk", 12, false},
		{"rtc0", "rtc", 0, false},
		{"noinstance", "", 0, true},
		{"0noname", "", 0, true},
		{"", "", 0, true},
		{"uart1x2", "", 0, true},
	}
	for _, c := range cases {
		name, instance, rc := parseDeviceSpec(c.spec)
		if c.wantError {
			if rc == 0 {
				t.Errorf("parseDeviceSpec(%q): expected error, got name=%q instance=%d", c.spec, name, instance)
			}
			continue
		}
		if rc != 0 || name != c.name || instance != c.instance {
			t.Errorf("parseDeviceSpec(%q) = (%q, %d, %d), want (%q, %d, 0)",
				c.spec, name, instance, rc, c.name, c.instance)
		}
	}
}
