package models

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions (minute hour day month weekday) and @descriptors.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Location returns the trigger's timezone, UTC when unset.
func (s *ScheduleTrigger) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidTrigger, s.Timezone)
	}

	return loc, nil
}

// Schedule parses the cron expression.
func (s *ScheduleTrigger) Schedule() (cron.Schedule, error) {
	schedule, err := cronParser.Parse(s.Cron)
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %v", ErrInvalidTrigger, s.Cron, err)
	}

	return schedule, nil
}

// NextAfter returns the next due time after reference, evaluated in the trigger's timezone.
func (s *ScheduleTrigger) NextAfter(reference time.Time) (time.Time, error) {
	schedule, err := s.Schedule()
	if err != nil {
		return time.Time{}, err
	}

	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}

	return schedule.Next(reference.In(loc)).UTC(), nil
}

// Spec returns the expression in the form accepted by cron.Cron.AddFunc, including the timezone prefix.
func (s *ScheduleTrigger) Spec() string {
	if s.Timezone == "" {
		return s.Cron
	}

	return "CRON_TZ=" + s.Timezone + " " + s.Cron
}
