// internal/service/service.go
// Package service 实现面向接口层的用例服务：
// 房间空调控制、入住、退房、客房订餐与报表。
package service

import (
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/types"
)

// ensureRoom 读取房间，不存在时按配置默认值建一间
func ensureRoom(cfg *config.Config, store db.Repository, roomID string) (*domain.Room, error) {
	room, err := store.GetRoom(roomID)
	if err == nil {
		return room, nil
	}
	if types.KindOf(err) != types.KindNotFound {
		return nil, err
	}
	room = domain.NewRoom(roomID, cfg.Temperature.DefaultTarget, cfg.Accommodation.RatePerNight)
	if err := store.SaveRoom(room); err != nil {
		return nil, err
	}
	return room, nil
}
