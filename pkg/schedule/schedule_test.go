package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mshirdel/projectflow/internal/errval"
)

func date(value string) *time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestAvailableHours(t *testing.T) {
	t.Run("single day yields one day of capacity", func(t *testing.T) {
		assert.Equal(t, int32(7), AvailableHours(date("2024-01-01"), date("2024-01-01")))
	})

	t.Run("seven inclusive days", func(t *testing.T) {
		assert.Equal(t, int32(49), AvailableHours(date("2024-01-01"), date("2024-01-07")))
	})

	t.Run("reversed range yields zero", func(t *testing.T) {
		assert.Equal(t, int32(0), AvailableHours(date("2024-01-07"), date("2024-01-01")))
	})

	t.Run("missing bound yields zero", func(t *testing.T) {
		assert.Equal(t, int32(0), AvailableHours(nil, date("2024-01-07")))
		assert.Equal(t, int32(0), AvailableHours(date("2024-01-01"), nil))
		assert.Equal(t, int32(0), AvailableHours(nil, nil))
	})

	t.Run("monotonically non-decreasing as the range widens", func(t *testing.T) {
		start := date("2024-03-01")
		prev := int32(0)
		for i := 0; i < 30; i++ {
			end := start.AddDate(0, 0, i)
			got := AvailableHours(start, &end)
			assert.GreaterOrEqual(t, got, prev)
			prev = got
		}
	})
}

func TestValidateHours(t *testing.T) {
	assert.NoError(t, ValidateHours(49, 49))

	err := ValidateHours(60, 49)
	var hoursErr *errval.HoursExceededError
	if assert.True(t, errors.As(err, &hoursErr)) {
		assert.Equal(t, int32(60), hoursErr.Allocated)
		assert.Equal(t, int32(49), hoursErr.Available)
	}
}

func TestValidateOrder(t *testing.T) {
	assert.NoError(t, ValidateOrder(date("2024-01-01"), date("2024-01-02")))
	assert.NoError(t, ValidateOrder(date("2024-01-01"), date("2024-01-01")))
	assert.NoError(t, ValidateOrder(nil, date("2024-01-02")))

	err := ValidateOrder(date("2024-01-02"), date("2024-01-01"))
	var rangeErr *errval.DateRangeViolationError
	assert.True(t, errors.As(err, &rangeErr))
}

func TestValidateContainment(t *testing.T) {
	projectStart, projectEnd := date("2024-01-01"), date("2024-01-31")

	t.Run("nested range passes", func(t *testing.T) {
		assert.NoError(t, ValidateContainment(date("2024-01-05"), date("2024-01-10"), projectStart, projectEnd, "project"))
	})

	t.Run("exact bounds pass", func(t *testing.T) {
		assert.NoError(t, ValidateContainment(projectStart, projectEnd, projectStart, projectEnd, "project"))
	})

	t.Run("start before parent fails", func(t *testing.T) {
		err := ValidateContainment(date("2023-12-31"), date("2024-01-10"), projectStart, projectEnd, "project")
		var rangeErr *errval.DateRangeViolationError
		assert.True(t, errors.As(err, &rangeErr))
	})

	t.Run("end after parent fails", func(t *testing.T) {
		err := ValidateContainment(date("2024-01-05"), date("2024-02-01"), projectStart, projectEnd, "project")
		assert.Error(t, err)
	})

	t.Run("nil child bounds are skipped", func(t *testing.T) {
		assert.NoError(t, ValidateContainment(nil, nil, projectStart, projectEnd, "project"))
	})
}
