package orders

import (
	"fmt"
	"time"
)

// NumberFormatter renders externally visible numbers as a localized
// timestamp followed by the zero padded row id, e.g. 20240101120000000042.
type NumberFormatter struct {
	loc *time.Location
}

func NewNumberFormatter(loc *time.Location) *NumberFormatter {
	if loc == nil {
		loc = time.UTC
	}
	return &NumberFormatter{loc: loc}
}

// ShanghaiFormatter matches the zone the channel merchants reconcile in.
func ShanghaiFormatter() *NumberFormatter {
	return NewNumberFormatter(time.FixedZone("CST", 8*60*60))
}

func (f *NumberFormatter) Format(at time.Time, id int64) string {
	return fmt.Sprintf("%s%06d", at.In(f.loc).Format("20060102150405"), id)
}
