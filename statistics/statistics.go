package statistics

import (
	"fmt"
	"sort"
	"sync"
)

type statisticsData struct {
	dataMap map[string]int

	mutex sync.Mutex
}

var stats = &statisticsData{
	dataMap: make(map[string]int),
}

// Init resets all counters, so independent runs report independently.
func Init() {
	stats.mutex.Lock()
	defer stats.mutex.Unlock()

	stats.dataMap = make(map[string]int)
}

func Set(key string, value int) {
	stats.mutex.Lock()
	defer stats.mutex.Unlock()

	stats.dataMap[key] = value
}

func Change(key string, value int) {
	stats.mutex.Lock()
	defer stats.mutex.Unlock()

	stats.dataMap[key] += value
}

func Get(key string) int {
	stats.mutex.Lock()
	defer stats.mutex.Unlock()

	return stats.dataMap[key]
}

func Display() string {
	stats.mutex.Lock()
	defer stats.mutex.Unlock()

	keys := make([]string, 0, len(stats.dataMap))
	for key := range stats.dataMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := "Statistics results are:\n"
	for _, key := range keys {
		result += fmt.Sprintf("Number of %s is %d\n", key, stats.dataMap[key])
	}

	return result
}
