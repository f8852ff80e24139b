package sim

import (
	"fmt"
	"time"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/layout"
	"github.com/tphummel/rackops/internal/models"
)

// Statement is the outcome of one monthly settlement.
type Statement struct {
	Month     time.Time `json:"month"`
	Revenue   float64   `json:"revenue"`
	ISPCost   float64   `json:"isp_cost"`
	Salaries  float64   `json:"salaries"`
	PowerBill float64   `json:"power_bill"`
	Net       float64   `json:"net"`
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// settle bills every month boundary crossed since the last settlement and
// returns how many were billed. Cash may go negative.
func (e *Engine) settle(st *models.State) int {
	n := 0
	for {
		next := monthStart(st.LastBilledAt).AddDate(0, 1, 0)
		if next.After(st.Time) {
			return n
		}
		stmt := e.statement(st, monthStart(st.LastBilledAt))
		st.Cash += stmt.Net
		st.Power.MonthConsumedKWh = 0
		st.LastBilledAt = next
		n++

		msg := fmt.Sprintf("%s settlement: revenue %.2f, ISP %.2f, salaries %.2f, power %.2f, net %+.2f",
			stmt.Month.Format("January 2006"), stmt.Revenue, stmt.ISPCost, stmt.Salaries, stmt.PowerBill, stmt.Net)
		st.Record(models.LevelInfo, "billing", msg)
		st.Notify(models.NotifyToast, msg)
		e.logger.Info("monthly settlement", "month", stmt.Month.Format("2006-01"), "net", stmt.Net, "cash", st.Cash)
	}
}

func (e *Engine) statement(st *models.State, month time.Time) Statement {
	s := Statement{Month: month}
	for _, id := range servingClients(e.cat, st) {
		c, _ := e.cat.ClientByID(id)
		s.Revenue += c.MonthlyRevenue
	}
	if isp, ok := e.cat.ISPByID(st.Network.ISPContract); ok {
		s.ISPCost = isp.MonthlyCost
	}
	for _, emp := range st.Employees {
		if def, ok := e.cat.SkillByName(emp.Skill); ok {
			s.Salaries += def.MonthlySalary
		}
	}
	s.PowerBill = st.Power.MonthConsumedKWh * e.cfg.PowerPricePerKWh
	s.Net = s.Revenue - (s.ISPCost + s.Salaries + s.PowerBill)
	return s
}

// networkedServers counts SERVER devices in the NETWORKED state.
func networkedServers(cat *catalog.Catalog, st *models.State) int {
	n := 0
	for _, p := range layout.ListDevicesByStatus(st.Layout, func(s models.DeviceStatus) bool { return s == models.StatusNetworked }) {
		if def, ok := cat.HardwareByID(p.Device.Type); ok && def.Category == catalog.CategoryServer {
			n++
		}
	}
	return n
}

// servingClients returns, in signing order, the client contracts that the
// current servers and uplink can carry. Contracts are filled first come
// first served.
func servingClients(cat *catalog.Catalog, st *models.State) []string {
	servers := networkedServers(cat, st)
	bandwidth := st.Network.Capacity
	var out []string
	for _, id := range st.Clients {
		c, ok := cat.ClientByID(id)
		if !ok || c.RequiredServers > servers || c.BandwidthDemand > bandwidth {
			continue
		}
		servers -= c.RequiredServers
		bandwidth -= c.BandwidthDemand
		out = append(out, id)
	}
	return out
}
