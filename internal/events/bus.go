// internal/events/bus.go
// Package events 提供调度器与时间管理器之间的有界异步事件总线
package events

import (
	"sync"
	"sync/atomic"

	"backend/internal/logger"
)

const defaultQueueSize = 1000

// Bus 有界 FIFO 事件总线
//
// Publish 永不阻塞：队列满时丢弃最旧的事件腾出空间，丢弃计数可观测。
// 处理器按注册顺序调用；处理器 panic 不会终止消费循环。
// 单消费者保证同一房间的事件按发布顺序处理。
type Bus struct {
	mu       sync.Mutex
	queue    chan SchedulerEvent
	handlers map[EventType][]Handler
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	dropped     atomic.Int64
	handlerErrs atomic.Int64
	consumed    atomic.Int64
}

// NewBus 创建容量为 size 的事件总线，size<=0 时使用默认容量
func NewBus(size int) *Bus {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Bus{
		queue:    make(chan SchedulerEvent, size),
		handlers: make(map[EventType][]Handler),
	}
}

// RegisterHandler 注册事件处理器，按注册顺序调用
func (b *Bus) RegisterHandler(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish 非阻塞发布，队列满时丢弃最旧事件
func (b *Bus) Publish(event SchedulerEvent) {
	for {
		select {
		case b.queue <- event:
			return
		default:
		}
		select {
		case old := <-b.queue:
			b.dropped.Add(1)
			logger.Warn("事件队列已满，丢弃最旧事件: %s 房间 %s", old.Type, old.RoomID)
		default:
		}
	}
}

// Start 启动消费循环，重复调用无副作用
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.consumeLoop(b.stopCh, b.doneCh)
	logger.Info("事件总线已启动")
}

// Stop 停止消费循环，重复调用无副作用
//
// 停止时不清空队列：在途事件允许丢失，调用方不得依赖流结束语义。
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	done := b.doneCh
	b.mu.Unlock()

	<-done
	logger.Info("事件总线已停止")
}

func (b *Bus) consumeLoop(stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case event := <-b.queue:
			b.dispatch(event)
		}
	}
}

func (b *Bus) dispatch(event SchedulerEvent) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.Unlock()

	for _, handler := range handlers {
		b.invoke(handler, event)
	}
	b.consumed.Add(1)
}

func (b *Bus) invoke(handler Handler, event SchedulerEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerErrs.Add(1)
			logger.Error("事件处理器 panic: %s 房间 %s: %v", event.Type, event.RoomID, r)
		}
	}()
	handler(event)
}

// PendingCount 待处理事件数量
func (b *Bus) PendingCount() int {
	return len(b.queue)
}

// DroppedCount 已丢弃事件总数
func (b *Bus) DroppedCount() int64 {
	return b.dropped.Load()
}

// HandlerErrorCount 处理器异常总数
func (b *Bus) HandlerErrorCount() int64 {
	return b.handlerErrs.Load()
}

// ConsumedCount 已消费事件总数
func (b *Bus) ConsumedCount() int64 {
	return b.consumed.Load()
}

// IsRunning 消费循环是否在运行
func (b *Bus) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
