package model

import "time"

// HubStats is the operator view of the notification hub.
type HubStats struct {
	TotalUsers       int           `json:"total_users"`
	TotalConnections int           `json:"total_connections"`
	DashboardViewers int           `json:"dashboard_viewers"`
	Uptime           time.Duration `json:"uptime"`
	Shards           []ShardStats  `json:"shards,omitempty"`
}

type ShardStats struct {
	ShardID     int `json:"shard_id"`
	UserCount   int `json:"user_count"`
	OnlineCount int `json:"online_count"`
}
