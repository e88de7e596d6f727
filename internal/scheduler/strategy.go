// internal/scheduler/strategy.go

package scheduler

import (
	"backend/internal/domain"
	"backend/internal/types"
)

// selectVictim 按调度规则从服务队列中挑选被抢占对象
//
// 只在风速优先级严格低于新请求的对象中挑选：
//   - 没有更低优先级的对象 → 不抢占，返回 nil
//   - 恰有一个 → 就是它
//   - 多个且风速相同 → 服务时长最长者
//   - 多个且风速不同 → 先取最低优先级，再取其中服务时长最长者
//
// 服务时长相同时取房间号最小者，保证结果可复现。
func selectVictim(services []*domain.ServiceObject, newSpeed types.Speed, served func(*domain.ServiceObject) int) *domain.ServiceObject {
	newPriority := types.SpeedPriority[newSpeed]
	slower := make([]*domain.ServiceObject, 0, len(services))
	for _, obj := range services {
		if types.SpeedPriority[obj.Speed] < newPriority {
			slower = append(slower, obj)
		}
	}
	if len(slower) == 0 {
		return nil
	}
	if len(slower) == 1 {
		return slower[0]
	}

	distinct := make(map[types.Speed]struct{}, len(slower))
	for _, obj := range slower {
		distinct[obj.Speed] = struct{}{}
	}
	if len(distinct) == 1 {
		return longestServed(slower, served)
	}

	minPriority := types.SpeedPriority[slower[0].Speed]
	for _, obj := range slower[1:] {
		if p := types.SpeedPriority[obj.Speed]; p < minPriority {
			minPriority = p
		}
	}
	candidates := make([]*domain.ServiceObject, 0, len(slower))
	for _, obj := range slower {
		if types.SpeedPriority[obj.Speed] == minPriority {
			candidates = append(candidates, obj)
		}
	}
	return longestServed(candidates, served)
}

// longestServed 返回服务时长最长的对象，时长相同取房间号最小者
func longestServed(services []*domain.ServiceObject, served func(*domain.ServiceObject) int) *domain.ServiceObject {
	var best *domain.ServiceObject
	bestServed := -1
	for _, obj := range services {
		s := served(obj)
		if s > bestServed || (s == bestServed && best != nil && obj.RoomID < best.RoomID) {
			best = obj
			bestServed = s
		}
	}
	return best
}

// highestPriorityWaiting 从等待队列中选出最应被提升的对象
//
// 依次比较：风速优先级 > 优先级令牌 > 等待时长；全部相同取房间号最小者。
func highestPriorityWaiting(entries []*domain.ServiceObject, waited func(*domain.ServiceObject) int) *domain.ServiceObject {
	var best *domain.ServiceObject
	var bestKey domain.PriorityKey
	for _, obj := range entries {
		key := obj.Key(waited(obj))
		if best == nil || bestKey.Less(key) || (!key.Less(bestKey) && !bestKey.Less(key) && obj.RoomID < best.RoomID) {
			best = obj
			bestKey = key
		}
	}
	return best
}
