package store

import "time"

func defaultNowMillis() int64 {
	return time.Now().UnixMilli()
}
