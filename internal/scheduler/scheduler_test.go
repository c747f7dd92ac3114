package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineHub/internal/models"
)

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New("every tuesday", func(models.MediaType) {})
	assert.Error(t, err)
}

func TestNext(t *testing.T) {
	s, err := New("0 3 * * *", func(models.MediaType) {})
	require.NoError(t, err)

	from := time.Date(2024, 6, 1, 4, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2024, 6, 2, 3, 0, 0, 0, time.Local), s.Next(from))
}

func TestFire_TriggersShowsThenMovies(t *testing.T) {
	var got []models.MediaType
	s, err := New("@daily", func(k models.MediaType) { got = append(got, k) })
	require.NoError(t, err)

	s.fire()
	assert.Equal(t, []models.MediaType{models.MediaTypeShow, models.MediaTypeMovie}, got)
}

func TestStartStop(t *testing.T) {
	s, err := New("@hourly", func(models.MediaType) {})
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
