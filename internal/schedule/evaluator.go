// Package schedule 判断投递排期是否允许条目可见,以及间隔订阅是否应该发射新条目。
// 所有函数都是纯函数,"现在"由调用方传入。
package schedule

import (
	"fmt"
	"time"

	"go-feeds/internal/model"
)

const week = 7 * 24 * time.Hour

// IsDelivered 条目在 now 时刻是否可见。排期为空时总是可见。
func IsDelivered(now, createdTime time.Time, s *model.DeliverySchedule) bool {
	if s == nil {
		return true
	}
	switch s.Kind {
	case model.ScheduleImmediate:
		return true
	case model.ScheduleNever:
		return false
	case model.ScheduleDaysAndTimesOfWeek:
		return daysAndTimesDelivered(now, createdTime, s.Days, s.Times)
	case model.ScheduleEveryNHours:
		return everyNHoursDelivered(now, createdTime, s.Hours)
	default:
		panic(fmt.Sprintf("unknown schedule kind %q", s.Kind))
	}
}

func daysAndTimesDelivered(now, createdTime time.Time, days []time.Weekday, times []model.TimeOfDay) bool {
	mostRecent, ok := MostRecentSlot(now, days, times)
	if !ok {
		return false
	}
	return !createdTime.After(mostRecent) && !mostRecent.After(now) && now.Before(mostRecent.Add(week))
}

// MostRecentSlot 返回所有 (星期, 时刻) 组合在 now 之前(含)最近一次出现的最大值,
// 使用 now 所在时区。
func MostRecentSlot(now time.Time, days []time.Weekday, times []model.TimeOfDay) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, day := range days {
		for _, tod := range times {
			occurrence, ok := previousOccurrence(now, day, tod)
			if !ok {
				continue
			}
			if !found || occurrence.After(latest) {
				latest = occurrence
				found = true
			}
		}
	}
	return latest, found
}

// previousOccurrence 最多回溯 7 天
func previousOccurrence(now time.Time, day time.Weekday, tod model.TimeOfDay) (time.Time, bool) {
	y, m, d := now.Date()
	for offset := 0; offset <= 7; offset++ {
		candidate := time.Date(y, m, d-offset, tod.Hour, tod.Minute, 0, 0, now.Location())
		if candidate.Weekday() != day {
			continue
		}
		if candidate.After(now) {
			continue
		}
		return candidate, true
	}
	return time.Time{}, false
}

func everyNHoursDelivered(now, createdTime time.Time, hours int) bool {
	fire, _, ok := EveryNHoursWindow(now, createdTime, hours)
	if !ok {
		return false
	}
	return !createdTime.After(fire) && !fire.After(now)
}

// EveryNHoursWindow 返回包含 now 的发射窗口 [fire, next)。
// 发射点锚定在 createdTime + k*interval (k >= 1),创建时刻本身不是发射点;
// 第一个完整间隔结束之前 ok 为 false。
func EveryNHoursWindow(now, createdTime time.Time, hours int) (fire, next time.Time, ok bool) {
	if hours <= 0 {
		return time.Time{}, time.Time{}, false
	}
	interval := time.Duration(hours) * time.Hour
	elapsed := now.Sub(createdTime)
	if elapsed < interval {
		return time.Time{}, createdTime.Add(interval), false
	}
	completed := int64(elapsed / interval)
	fire = createdTime.Add(time.Duration(completed) * interval)
	return fire, fire.Add(interval), true
}

// EmissionDue 间隔订阅是否应该发射。anchor 为上次发射时间,从未发射过时为订阅创建时间。
func EmissionDue(now, anchor time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	return !now.Before(anchor.Add(interval))
}

// NextEmission 下一次发射时间
func NextEmission(anchor time.Time, interval time.Duration) time.Time {
	return anchor.Add(interval)
}
