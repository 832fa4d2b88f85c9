package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleSessionsChart renders a bar chart of percent movement per
// session, oldest on the left.
func (s *Server) handleSessionsChart(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSONError(w, http.StatusNotFound, "no session store")
		return
	}
	sessions, err := s.store.RecentSessions(queryInt(r, "limit", 50))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// RecentSessions is newest-first; flip for a chronological axis.
	x := make([]string, 0, len(sessions))
	deltas := make([]opts.BarData, 0, len(sessions))
	battles := make([]opts.BarData, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		sess := sessions[i]
		x = append(x, fmt.Sprintf("#%d %s", sess.ID, sess.TankName))
		deltas = append(deltas, opts.BarData{Value: sess.Delta()})
		battles = append(battles, opts.BarData{Value: sess.Battles})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session History", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Session History", Subtitle: fmt.Sprintf("sessions=%d", len(sessions))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("percent delta", deltas,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		).
		AddSeries("battles", battles)

	s.renderChart(w, bar)
}

// handleHistoryChart renders per-battle combined damage against the
// moving average for one vehicle.
func (s *Server) handleHistoryChart(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSONError(w, http.StatusNotFound, "no session store")
		return
	}
	tankID := queryInt(r, "tank_id", s.tracker.TankID())
	if tankID == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "tank_id required")
		return
	}
	history, err := s.store.BattleHistory(tankID, queryInt(r, "limit", 100))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	x := make([]string, 0, len(history))
	damage := make([]opts.LineData, 0, len(history))
	ema := make([]opts.LineData, 0, len(history))
	for i, battle := range history {
		x = append(x, fmt.Sprintf("%d", i+1))
		damage = append(damage, opts.LineData{Value: battle.CombinedDamage})
		ema = append(ema, opts.LineData{Value: battle.EmaAfter})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Battle History", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Battle History, Tank %d", tankID), Subtitle: fmt.Sprintf("battles=%d", len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("combined damage", damage).
		AddSeries("damage average", ema, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	if target := s.tracker.Snapshot().TargetDamage; target > 0 && s.tracker.TankID() == tankID {
		targetLine := make([]opts.LineData, len(history))
		for i := range targetLine {
			targetLine[i] = opts.LineData{Value: target}
		}
		line.AddSeries("target", targetLine)
	}

	s.renderChart(w, line)
}

// renderChart writes a chart as a standalone HTML page.
func (s *Server) renderChart(w http.ResponseWriter, chart interface{ Render(io.Writer) error }) {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
