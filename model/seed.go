package model

import "github.com/shopspring/decimal"

// Built-in sample data inserted into empty collections on first open.

func SeedMaintenanceItems() []MaintenanceItem {
	return []MaintenanceItem{
		{ID: "1", Name: "Engine oil", LastServiceDate: "2023-10-15", LastServiceMileage: 45000, IntervalMonths: 6, IntervalKm: 10000},
		{ID: "2", Name: "Tire rotation", LastServiceDate: "2023-08-01", LastServiceMileage: 42000, IntervalMonths: 6, IntervalKm: 12000},
		{ID: "3", Name: "Brake fluid", LastServiceDate: "2022-05-20", LastServiceMileage: 30000, IntervalMonths: 24, IntervalKm: 40000},
	}
}

func SeedStocks() []StockHolding {
	return []StockHolding{
		{Symbol: "AAPL", Name: "Apple", Shares: decimal.NewFromInt(15), AvgPrice: decimal.NewFromInt(150), CurrentPrice: decimal.NewFromInt(175)},
		{Symbol: "NVDA", Name: "NVIDIA", Shares: decimal.NewFromInt(2), AvgPrice: decimal.NewFromInt(400), CurrentPrice: decimal.NewFromInt(850)},
	}
}

func SeedGoals() []Goal {
	return []Goal{
		{ID: "1", Title: "Save 20,000,000 KRW", Category: GoalFinance, Progress: 65, TargetDate: "2024-12-31"},
	}
}

func SeedGalleryProfiles() []GalleryProfile {
	return []GalleryProfile{
		{
			ID:              "moka-default",
			Name:            "MOKA",
			GroupLabel:      "ILLIT",
			BirthDate:       "2004-10-08",
			Role:            "Idol",
			Description:     "Welcome to your personal archive.",
			ProfileImageURL: "https://i.pinimg.com/originals/a0/0d/17/a00d1709403328221804f55331f7743d.jpg",
			ThemeColor:      "pink",
			Gallery:         []GalleryImage{},
		},
	}
}
