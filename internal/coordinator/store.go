package coordinator

import (
	"sort"
	"sync"
)

// ResultStore 请求记录存储，请求 ID -> 记录，容量有上限，超出后按创建时间
// 淘汰最旧的记录
//
// 单个互斥锁同时保护映射本身和记录字段的修改：worker 对记录的字段更新视作
// 对存储的修改，统一走 Update/Snapshot，保证不会读到修改了一半的状态
type ResultStore struct {
	mu       sync.Mutex
	capacity int
	records  map[string]*GenerationRequest
}

func NewResultStore(capacity int) *ResultStore {
	if capacity <= 0 {
		capacity = 100
	}

	return &ResultStore{
		capacity: capacity,
		records:  make(map[string]*GenerationRequest),
	}
}

// Put 写入新记录，ID 已存在时返回 ErrDuplicateID
func (s *ResultStore) Put(rec *GenerationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return ErrDuplicateID
	}

	s.records[rec.ID] = rec
	return nil
}

// Get 按 ID 查询记录快照，记录不存在（包括已被淘汰）返回 ErrNotFound
func (s *ResultStore) Get(id string) (GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return GenerationRequest{}, ErrNotFound
	}

	return *rec, nil
}

// Remove 删除记录，用于入队失败后的回滚
func (s *ResultStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
}

// Update 在存储锁的保护下修改记录字段
//
// 直接作用于记录指针而不是先按 ID 查询：处理中的记录可能已经被淘汰出映射，
// 但同步等待的调用方还持有记录引用，依然要能看到终态
func (s *ResultStore) Update(rec *GenerationRequest, fn func(rec *GenerationRequest)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(rec)
}

// Snapshot 在存储锁的保护下读取记录快照
func (s *ResultStore) Snapshot(rec *GenerationRequest) GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *rec
}

// Len 当前记录数量
func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// CountByStatus 统计处于指定状态的记录数量
func (s *ResultStore) CountByStatus(status Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	for _, rec := range s.records {
		if rec.Status == status {
			count++
		}
	}

	return count
}

// EvictIfOverCapacity 超出容量时淘汰最旧的记录，每个 worker 周期结束后调用一次
//
// 淘汰后存储大小回落到 floor(capacity * 0.8)，被淘汰记录的 ID 再查询时返回
// ErrNotFound，对还在轮询这个 ID 的客户端来说这是一个已明确定义的竞态，不算错误
func (s *ResultStore) EvictIfOverCapacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) <= s.capacity {
		return 0
	}

	items := make([]*GenerationRequest, 0, len(s.records))
	for _, rec := range s.records {
		items = append(items, rec)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	toRemove := len(s.records) - s.capacity*8/10
	for _, rec := range items[:toRemove] {
		delete(s.records, rec.ID)
	}

	return toRemove
}
