package util

import (
	"fmt"
	"time"
)

// FormatDuration renders d as h:mm:ss.micro for run-summary log lines.
func FormatDuration(d time.Duration) string {
	us := d.Microseconds()
	return fmt.Sprintf("%d:%02d:%02d.%06d",
		us/1000000/60/60,
		us/1000000/60%60,
		us/1000000%60,
		us%1000000)
}
