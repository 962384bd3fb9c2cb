// Package incrementer は完了済みの JobInstance を再実行するためのパラメータ生成を提供します。
package incrementer

import (
	"fmt"
	"strings"
	"time"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	exception "github.com/tigerroll/autobatch/pkg/batch/util/exception"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

const (
	// RunIDKey は RunIDIncrementer が使用するパラメータ名です。
	RunIDKey = "run.id"
	// TimestampKey は TimestampIncrementer が使用するパラメータ名です。
	TimestampKey = "timestamp"
)

// RunIDIncrementer はパラメータ "run.id" を 1 ずつ増やします。
type RunIDIncrementer struct {
	key string
}

// NewRunIDIncrementer は新しい RunIDIncrementer を作成します。key が空の場合は "run.id" です。
func NewRunIDIncrementer(key string) *RunIDIncrementer {
	if key == "" {
		key = RunIDKey
	}
	return &RunIDIncrementer{key: key}
}

// GetNext は run.id を増やしたパラメータのコピーを返します。
func (i *RunIDIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	next := copyParams(params)
	current, _ := params.GetInt(i.key)
	next.Put(i.key, current+1)
	logger.Debugf("JobParametersIncrementer: '%s' を %d に設定しました。", i.key, current+1)
	return next
}

func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[key=%s]", i.key)
}

// TimestampIncrementer はパラメータ "timestamp" に現在時刻 (Unix ミリ秒) を設定します。
// 同じミリ秒内で呼ばれた場合も、前の値より大きい値を返します。
type TimestampIncrementer struct {
	key string
	now func() time.Time
}

// NewTimestampIncrementer は新しい TimestampIncrementer を作成します。key が空の場合は "timestamp" です。
func NewTimestampIncrementer(key string) *TimestampIncrementer {
	if key == "" {
		key = TimestampKey
	}
	return &TimestampIncrementer{key: key, now: time.Now}
}

// GetNext は timestamp を更新したパラメータのコピーを返します。
func (i *TimestampIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	next := copyParams(params)
	ts := i.now().UnixMilli()
	if prev, ok := params.GetInt(i.key); ok && int64(prev) >= ts {
		ts = int64(prev) + 1
	}
	next.Put(i.key, ts)
	logger.Debugf("JobParametersIncrementer: '%s' を %d に設定しました。", i.key, ts)
	return next
}

func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[key=%s]", i.key)
}

func copyParams(params core.JobParameters) core.JobParameters {
	next := core.NewJobParameters()
	for k, v := range params.Params {
		next.Put(k, v)
	}
	return next
}

// New は batch.job.incrementer の値から JobParametersIncrementer を作成します。
// 空文字列の場合は (nil, nil) を返します。
func New(kind string) (core.JobParametersIncrementer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "":
		return nil, nil
	case "run.id", "runid", "run_id":
		return NewRunIDIncrementer(RunIDKey), nil
	case "timestamp":
		return NewTimestampIncrementer(TimestampKey), nil
	default:
		return nil, exception.NewConfigurationError("incrementer", fmt.Sprintf("不明な incrementer です: %q", kind), nil)
	}
}

var (
	_ core.JobParametersIncrementer = (*RunIDIncrementer)(nil)
	_ core.JobParametersIncrementer = (*TimestampIncrementer)(nil)
)
