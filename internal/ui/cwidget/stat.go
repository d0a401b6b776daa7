package cwidget

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Stat is a bold caption followed by a formatted value, used in the status
// bar above the video.
type Stat[T any] struct {
	widget.BaseWidget

	labelWidget *widget.Label
	valueWidget *widget.Label

	LabelText string
	Format    func(T) string
}

func NewStat[T any](label string, initial T, format func(T) string) *Stat[T] {
	if format == nil {
		format = func(v T) string { return fmt.Sprint(v) }
	}

	s := &Stat[T]{
		LabelText: label,
		Format:    format,
	}

	s.labelWidget = widget.NewLabel(label + ":")
	s.labelWidget.TextStyle = fyne.TextStyle{Bold: true}
	s.valueWidget = widget.NewLabel(format(initial))

	s.ExtendBaseWidget(s)

	return s
}

func NewIntStat(label string) *Stat[int] {
	return NewStat(label, 0, func(v int) string { return fmt.Sprintf("%d", v) })
}

func (s *Stat[T]) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewHBox(
		s.labelWidget,
		s.valueWidget,
	)

	return widget.NewSimpleRenderer(c)
}

// SetValue must be called on the fyne goroutine (inside fyne.Do).
func (s *Stat[T]) SetValue(v T) {
	s.valueWidget.SetText(s.Format(v))
}

func (s *Stat[T]) Text() string {
	return s.valueWidget.Text
}
