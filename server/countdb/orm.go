package countdb

import (
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/linecount/pkg/counting"
	"github.com/cyclopcam/linecount/pkg/nn"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// A saved snapshot of the counts of one session.
// SYNC-DAILY-STATISTICS
type DailyStatistics struct {
	BaseModel
	Source          string      `json:"source"`       // Name of the video or recording that was counted
	DateRecorded    string      `json:"dateRecorded"` // YYYY-MM-DD
	CarCount        int64       `json:"carCount"`
	TruckCount      int64       `json:"truckCount"`
	BusCount        int64       `json:"busCount"`
	MotorcycleCount int64       `json:"motorcycleCount"`
	BicycleCount    int64       `json:"bicycleCount"`
	TotalCount      int64       `json:"totalCount"`
	CreatedAt       dbh.IntTime `json:"createdAt"`
}

func (d *DailyStatistics) setCounts(c counting.Counts) {
	d.CarCount = c.Get(nn.VehicleCar)
	d.TruckCount = c.Get(nn.VehicleTruck)
	d.BusCount = c.Get(nn.VehicleBus)
	d.MotorcycleCount = c.Get(nn.VehicleMotorcycle)
	d.BicycleCount = c.Get(nn.VehicleBicycle)
	d.TotalCount = c.Total
}

// Counts converts the row back into counts
func (d *DailyStatistics) Counts() counting.Counts {
	c := counting.Counts{}
	c.PerClass[nn.VehicleCar] = d.CarCount
	c.PerClass[nn.VehicleTruck] = d.TruckCount
	c.PerClass[nn.VehicleBus] = d.BusCount
	c.PerClass[nn.VehicleMotorcycle] = d.MotorcycleCount
	c.PerClass[nn.VehicleBicycle] = d.BicycleCount
	c.Total = d.TotalCount
	return c
}
