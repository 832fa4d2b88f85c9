package server

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// handleHistoryPlot renders the moving average across logged battles as
// a PNG, for embedding outside the browser charts.
func (s *Server) handleHistoryPlot(w http.ResponseWriter, r *http.Request) {
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

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Damage Average, Tank %d", tankID)
	p.X.Label.Text = "Battle"
	p.Y.Label.Text = "Combined Damage"

	emaPts := make(plotter.XYs, 0, len(history))
	damagePts := make(plotter.XYs, 0, len(history))
	for i, battle := range history {
		emaPts = append(emaPts, plotter.XY{X: float64(i + 1), Y: battle.EmaAfter})
		damagePts = append(damagePts, plotter.XY{X: float64(i + 1), Y: float64(battle.CombinedDamage)})
	}

	if len(damagePts) > 0 {
		damageLine, err := plotter.NewLine(damagePts)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		damageLine.Color = color.RGBA{R: 160, G: 160, B: 160, A: 255}
		damageLine.Width = vg.Points(1)
		p.Add(damageLine)
		p.Legend.Add("damage", damageLine)
	}
	if len(emaPts) > 0 {
		emaLine, err := plotter.NewLine(emaPts)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		emaLine.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
		emaLine.Width = vg.Points(2)
		p.Add(emaLine)
		p.Legend.Add("average", emaLine)
	}
	if target := s.tracker.Snapshot().TargetDamage; target > 0 && s.tracker.TankID() == tankID && len(history) > 0 {
		targetPts := plotter.XYs{
			{X: 1, Y: target},
			{X: float64(len(history)), Y: target},
		}
		targetLine, err := plotter.NewLine(targetPts)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		targetLine.Color = color.RGBA{R: 219, G: 68, B: 55, A: 255}
		targetLine.Width = vg.Points(1)
		targetLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(targetLine)
		p.Legend.Add("target", targetLine)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}
