package model

import (
	"fmt"
	"time"
)

type ScheduleKind string

const (
	ScheduleImmediate          ScheduleKind = "immediate"
	ScheduleNever              ScheduleKind = "never"
	ScheduleDaysAndTimesOfWeek ScheduleKind = "days_and_times_of_week"
	ScheduleEveryNHours        ScheduleKind = "every_n_hours"
)

// TimeOfDay 一天中的时刻,精确到分钟
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// DeliverySchedule 决定已创建条目何时对用户可见。
// Days/Times 仅用于 days_and_times_of_week,Hours 仅用于 every_n_hours。
type DeliverySchedule struct {
	Kind  ScheduleKind   `json:"kind" yaml:"kind"`
	Days  []time.Weekday `json:"days,omitempty" yaml:"days,omitempty"`
	Times []TimeOfDay    `json:"times,omitempty" yaml:"times,omitempty"`
	Hours int            `json:"hours,omitempty" yaml:"hours,omitempty"`
}

func Immediate() *DeliverySchedule { return &DeliverySchedule{Kind: ScheduleImmediate} }

func Never() *DeliverySchedule { return &DeliverySchedule{Kind: ScheduleNever} }

func DaysAndTimesOfWeek(days []time.Weekday, times []TimeOfDay) *DeliverySchedule {
	return &DeliverySchedule{Kind: ScheduleDaysAndTimesOfWeek, Days: days, Times: times}
}

func EveryNHours(hours int) *DeliverySchedule {
	return &DeliverySchedule{Kind: ScheduleEveryNHours, Hours: hours}
}

// Validate 校验排期参数
func (s *DeliverySchedule) Validate() error {
	switch s.Kind {
	case ScheduleImmediate, ScheduleNever:
		return nil
	case ScheduleDaysAndTimesOfWeek:
		if len(s.Days) == 0 {
			return fmt.Errorf("days_and_times_of_week schedule requires at least one day")
		}
		if len(s.Times) == 0 {
			return fmt.Errorf("days_and_times_of_week schedule requires at least one time")
		}
		for _, d := range s.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("invalid weekday %d", d)
			}
		}
		for _, t := range s.Times {
			if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
				return fmt.Errorf("invalid time of day %s", t)
			}
		}
		return nil
	case ScheduleEveryNHours:
		if s.Hours <= 0 {
			return fmt.Errorf("every_n_hours schedule requires positive hours, got %d", s.Hours)
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}
