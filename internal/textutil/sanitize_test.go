package textutil

import "testing"

func TestSecureFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"song.mp3", "song.mp3"},
		{"My Song (live).mp3", "My_Song_live.mp3"},
		{"../../etc/passwd", "etc_passwd"},
		{`C:\Users\me\track.wav`, "C_Users_me_track.wav"},
		{"Beyoncé – Halo.flac", "Beyonce_Halo.flac"},
		{"  spaced   out  .m4a ", "spaced_out_.m4a"},
		{".hidden.mp4", "hidden.mp4"},
		{"ｆｕｌｌｗｉｄｔｈ.ogg", "fullwidth.ogg"},
		{"日本語", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := SecureFileName(tc.in); got != tc.want {
			t.Errorf("SecureFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
