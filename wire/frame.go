package wire

// MaxMessage bounds one wire line, prefix and trailing newline
// included.
const MaxMessage = 1024

// Outbound reply prefixes.  PrefixPrintMore marks a chunk that will be
// continued; the receiver unquotes each payload and concatenates.
// Splits never land inside an escape pair, so per-chunk unquoting is
// exact.
const (
	PrefixPID         = "-emacs-pid"
	PrefixPrint       = "-print "
	PrefixPrintMore   = "-print-nonl "
	PrefixError       = "-error "
	NoticeNoWindowSys = "-window-system-unsupported"
)

// FramePrint quotes text and splits it into as many -print-nonl lines
// as needed, with the final chunk on a -print line.  Every returned
// line fits in MaxMessage once a newline is appended, and a split
// never lands inside an escape pair: if the cut point follows an odd
// run of "&" bytes it backs off one byte.
func FramePrint(text string) []string {
	q := Quote(text)

	var lines []string
	budget := MaxMessage - len(PrefixPrintMore) - 1
	for len(PrefixPrint)+len(q)+1 > MaxMessage {
		cut := budget
		if ampRun(q[:cut])%2 == 1 {
			cut--
		}
		lines = append(lines, PrefixPrintMore+q[:cut])
		q = q[cut:]
	}
	return append(lines, PrefixPrint+q)
}

// FrameError builds a single -error line.  Error text longer than one
// line allows is truncated rather than chunked; the receiver treats an
// -error line as terminal, so continuation prefixes do not apply.
func FrameError(msg string) string {
	q := Quote(msg)
	budget := MaxMessage - len(PrefixError) - 1
	if len(q) > budget {
		cut := budget
		if ampRun(q[:cut])%2 == 1 {
			cut--
		}
		q = q[:cut]
	}
	return PrefixError + q
}

// ampRun counts the trailing run of '&' bytes in s.
func ampRun(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '&'; i-- {
		n++
	}
	return n
}
