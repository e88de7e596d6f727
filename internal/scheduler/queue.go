// internal/scheduler/queue.go

package scheduler

import (
	"backend/internal/domain"
	"backend/internal/logger"
)

// 队列不另设内存镜像，统一走仓储读写：
// 内存实现天然同步，sqlite 实现顺带获得断电恢复能力。

func (s *Scheduler) listServiceEntries() []*domain.ServiceObject {
	entries, err := s.store.ListServiceObjects()
	if err != nil {
		logger.Warn("读取服务队列失败: %v", err)
		return nil
	}
	return entries
}

func (s *Scheduler) listWaitEntries() []*domain.ServiceObject {
	entries, err := s.store.ListWaitEntries()
	if err != nil {
		logger.Warn("读取等待队列失败: %v", err)
		return nil
	}
	return entries
}

func (s *Scheduler) getServiceEntry(roomID string) *domain.ServiceObject {
	obj, err := s.store.GetServiceObject(roomID)
	if err != nil {
		logger.Warn("读取服务对象 %s 失败: %v", roomID, err)
		return nil
	}
	return obj
}

func (s *Scheduler) getWaitEntry(roomID string) *domain.ServiceObject {
	obj, err := s.store.GetWaitEntry(roomID)
	if err != nil {
		logger.Warn("读取等待对象 %s 失败: %v", roomID, err)
		return nil
	}
	return obj
}

func (s *Scheduler) serviceQueueSize() int {
	n, err := s.store.ServiceQueueSize()
	if err != nil {
		logger.Warn("读取服务队列长度失败: %v", err)
		return 0
	}
	return n
}

func (s *Scheduler) waitQueueSize() int {
	n, err := s.store.WaitQueueSize()
	if err != nil {
		logger.Warn("读取等待队列长度失败: %v", err)
		return 0
	}
	return n
}

// servedSeconds 服务对象已服务的逻辑秒数（查 SERVICE 计时器）
func (s *Scheduler) servedSeconds(obj *domain.ServiceObject) int {
	if obj.TimerID == "" {
		return 0
	}
	return s.tm.GetElapsedSeconds(obj.TimerID)
}

// waitedSeconds 等待对象已等待的逻辑秒数（查 WAIT 计时器）
func (s *Scheduler) waitedSeconds(obj *domain.ServiceObject) int {
	if obj.TimerID == "" {
		return 0
	}
	return s.tm.GetElapsedSeconds(obj.TimerID)
}

// selectNextWaiting 从等待队列选出下一个应被提升的对象
func (s *Scheduler) selectNextWaiting() *domain.ServiceObject {
	return highestPriorityWaiting(s.listWaitEntries(), s.waitedSeconds)
}
