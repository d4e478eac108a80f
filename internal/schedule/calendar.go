package schedule

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/notablehumans/ingest/internal/config"
)

// DayPage is one day-of-year page to crawl ("January", 1 -> "January 1").
type DayPage struct {
	Month string `yaml:"month"`
	Day   int    `yaml:"day"`
}

// Calendar is the set of day pages a scheduling run covers.
type Calendar struct {
	Days []DayPage `yaml:"days"`
}

var monthDays = map[string]int{
	"January": 31, "February": 29, "March": 31, "April": 30,
	"May": 31, "June": 30, "July": 31, "August": 31,
	"September": 30, "October": 31, "November": 30, "December": 31,
}

// LoadCalendar reads an explicit day-page manifest from a YAML file.
func LoadCalendar(path string) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: read calendar %s", path)
	}

	var wrapper struct {
		Calendar Calendar `yaml:"calendar"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "schedule: parse calendar")
	}

	cal := &wrapper.Calendar
	for _, d := range cal.Days {
		if err := validateDay(d); err != nil {
			return nil, err
		}
	}
	return cal, nil
}

// CalendarFromConfig expands the configured months and days into pages,
// clamping to each month's length ("February 30" is not a page).
func CalendarFromConfig(cfg config.ScheduleConfig) (*Calendar, error) {
	cal := &Calendar{}
	for _, month := range cfg.Months {
		limit, ok := monthDays[month]
		if !ok {
			return nil, eris.Errorf("schedule: unknown month %q", month)
		}
		days := cfg.Days
		if len(days) == 0 {
			days = fullMonth(limit)
		}
		for _, day := range days {
			if day < 1 {
				return nil, eris.Errorf("schedule: invalid day %d", day)
			}
			if day > limit {
				continue
			}
			cal.Days = append(cal.Days, DayPage{Month: month, Day: day})
		}
	}
	return cal, nil
}

func validateDay(d DayPage) error {
	limit, ok := monthDays[d.Month]
	if !ok {
		return eris.Errorf("schedule: unknown month %q", d.Month)
	}
	if d.Day < 1 || d.Day > limit {
		return eris.Errorf("schedule: invalid day %s %d", d.Month, d.Day)
	}
	return nil
}

func fullMonth(limit int) []int {
	days := make([]int, limit)
	for i := range days {
		days[i] = i + 1
	}
	return days
}
