// Package step はチャンク指向のステップを提供します。
package step

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/tigerroll/autobatch/pkg/batch/database"
	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	repojob "github.com/tigerroll/autobatch/pkg/batch/repository/job"
	exception "github.com/tigerroll/autobatch/pkg/batch/util/exception"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

const module = "chunk_step"

// ChunkStep はチャンク指向のステップを実装します。
// チャンクごとに読み込み、変換、書き込み、コミット、チェックポイント保存を行います。
type ChunkStep[I, O any] struct {
	name       string
	reader     core.ItemReader[I]
	processor  core.ItemProcessor[I, O]
	writer     core.ItemWriter[O]
	chunkSize  int
	repository repojob.StepExecution
	txManager  database.DBConnection

	stepListeners        []core.StepExecutionListener
	chunkListeners       []core.ChunkListener
	itemReadListeners    []core.ItemReadListener
	itemProcessListeners []core.ItemProcessListener
	itemWriteListeners   []core.ItemWriteListener
}

// NewChunkStep は新しい ChunkStep のインスタンスを作成します。
// repository は各チャンクのコミット後に StepExecution を保存するために使用されます。
func NewChunkStep[I, O any](
	name string,
	r core.ItemReader[I],
	p core.ItemProcessor[I, O],
	w core.ItemWriter[O],
	chunkSize int,
	repository repojob.StepExecution,
) (*ChunkStep[I, O], error) {
	if name == "" {
		return nil, exception.NewConfigurationError(module, "ステップ名が設定されていません", nil)
	}
	if r == nil || p == nil || w == nil {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("ステップ '%s' に reader, processor, writer のいずれかがありません", name), nil)
	}
	if chunkSize <= 0 {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("ステップ '%s' の chunk-size は 1 以上である必要があります: %d", name, chunkSize), nil)
	}
	if repository == nil {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("ステップ '%s' に JobRepository がありません", name), nil)
	}
	return &ChunkStep[I, O]{
		name:       name,
		reader:     r,
		processor:  p,
		writer:     w,
		chunkSize:  chunkSize,
		repository: repository,
	}, nil
}

// StepName はステップの名前を返します。
func (cs *ChunkStep[I, O]) StepName() string {
	return cs.name
}

// ChunkSize はチャンクサイズを返します。
func (cs *ChunkStep[I, O]) ChunkSize() int {
	return cs.chunkSize
}

// Reader はステップの ItemReader を返します。
func (cs *ChunkStep[I, O]) Reader() core.ItemReader[I] {
	return cs.reader
}

// Writer はステップの ItemWriter を返します。
func (cs *ChunkStep[I, O]) Writer() core.ItemWriter[O] {
	return cs.writer
}

// SetTransactionManager はチャンクのトランザクションを開始するデータソースを設定します。
// 設定しない場合、ライターには nil のトランザクションが渡されます。
func (cs *ChunkStep[I, O]) SetTransactionManager(db database.DBConnection) {
	cs.txManager = db
}

// RegisterListener は実装しているインターフェースに応じてリスナーを登録します。
// どのリスナーインターフェースも実装していない場合は false を返します。
func (cs *ChunkStep[I, O]) RegisterListener(l any) bool {
	registered := false
	if sl, ok := l.(core.StepExecutionListener); ok {
		cs.stepListeners = append(cs.stepListeners, sl)
		registered = true
	}
	if cl, ok := l.(core.ChunkListener); ok {
		cs.chunkListeners = append(cs.chunkListeners, cl)
		registered = true
	}
	if rl, ok := l.(core.ItemReadListener); ok {
		cs.itemReadListeners = append(cs.itemReadListeners, rl)
		registered = true
	}
	if pl, ok := l.(core.ItemProcessListener); ok {
		cs.itemProcessListeners = append(cs.itemProcessListeners, pl)
		registered = true
	}
	if wl, ok := l.(core.ItemWriteListener); ok {
		cs.itemWriteListeners = append(cs.itemWriteListeners, wl)
		registered = true
	}
	return registered
}

// Execute はチャンクステップのビジネスロジックを実行します。
// キャンセルはチャンクの間でのみ確認され、処理中のチャンクは最後まで実行されます。
func (cs *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) (err error) {
	logger.Infof("ステップ '%s' の実行を開始します。", cs.name)
	chunkCtx := context.WithoutCancel(ctx)

	for _, l := range cs.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}
	stepExecution.MarkAsStarted()
	if updateErr := cs.repository.UpdateStepExecution(chunkCtx, stepExecution); updateErr != nil {
		logger.Warnf("ステップ '%s' の StepExecution (ID: %s) の更新に失敗しました: %v", cs.name, stepExecution.ID, updateErr)
	}

	defer func() {
		if err == nil {
			stepExecution.MarkAsCompleted()
		}
		for _, l := range cs.stepListeners {
			l.AfterStep(chunkCtx, stepExecution)
		}
		if updateErr := cs.repository.UpdateStepExecution(chunkCtx, stepExecution); updateErr != nil {
			logger.Errorf("ステップ '%s' の最終 StepExecution (ID: %s) の更新に失敗しました: %v", cs.name, stepExecution.ID, updateErr)
			if err == nil {
				err = exception.NewBatchError(module, "StepExecution の最終状態の保存に失敗しました", updateErr)
			}
		}
		logger.Infof("ステップ '%s' の実行が完了しました。ステータス: %s, 終了ステータス: %s", cs.name, stepExecution.Status, stepExecution.ExitStatus)
	}()

	if err := cs.open(chunkCtx, stepExecution); err != nil {
		stepExecution.MarkAsFailed(err)
		return err
	}
	defer cs.close(chunkCtx)

	for {
		select {
		case <-ctx.Done():
			stepExecution.MarkAsStopped(ctx.Err())
			logger.Warnf("ステップ '%s' がコンテキストキャンセルにより停止されました: %v", cs.name, ctx.Err())
			return ctx.Err()
		default:
		}

		done, chunkErr := cs.executeChunk(chunkCtx, stepExecution)
		if chunkErr != nil {
			stepExecution.MarkAsFailed(chunkErr)
			return chunkErr
		}
		if done {
			return nil
		}
	}
}

// open はステップの ExecutionContext から状態を復元してリーダーとライターを開きます。
func (cs *ChunkStep[I, O]) open(ctx context.Context, stepExecution *core.StepExecution) error {
	ec := stepExecution.ExecutionContext
	if ec == nil {
		ec = core.NewExecutionContext()
		stepExecution.ExecutionContext = ec
	}
	if err := cs.reader.Open(ctx, ec.Copy()); err != nil {
		return err
	}
	if err := cs.processor.SetExecutionContext(ctx, ec.Copy()); err != nil {
		cs.reader.Close(ctx)
		return err
	}
	if err := cs.writer.Open(ctx, ec.Copy()); err != nil {
		cs.reader.Close(ctx)
		return err
	}
	return nil
}

func (cs *ChunkStep[I, O]) close(ctx context.Context) {
	if err := cs.reader.Close(ctx); err != nil {
		logger.Errorf("ステップ '%s' の Reader のクローズに失敗しました: %v", cs.name, err)
	}
	if err := cs.writer.Close(ctx); err != nil {
		logger.Errorf("ステップ '%s' の Writer のクローズに失敗しました: %v", cs.name, err)
	}
}

// executeChunk は 1 チャンクを処理します。入力が終端に達した場合は done が true になります。
func (cs *ChunkStep[I, O]) executeChunk(ctx context.Context, stepExecution *core.StepExecution) (done bool, err error) {
	for _, l := range cs.chunkListeners {
		l.BeforeChunk(ctx, stepExecution)
	}

	var tx database.Tx
	defer func() {
		if err == nil {
			return
		}
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Errorf("ステップ '%s' のロールバックに失敗しました: %v", cs.name, rbErr)
			}
		}
		stepExecution.RollbackCount++
		for _, l := range cs.chunkListeners {
			l.AfterChunkError(ctx, stepExecution, err)
		}
	}()

	items := make([]I, 0, cs.chunkSize)
	for len(items) < cs.chunkSize {
		item, readErr := cs.reader.Read(ctx)
		if errors.Is(readErr, io.EOF) {
			done = true
			break
		}
		if readErr != nil {
			for _, l := range cs.itemReadListeners {
				l.OnReadError(ctx, readErr)
			}
			return false, readErr
		}
		stepExecution.ReadCount++
		items = append(items, item)
	}

	if len(items) == 0 {
		return done, nil
	}

	outputs := make([]O, 0, len(items))
	for _, item := range items {
		out, procErr := cs.processor.Process(ctx, item)
		if procErr != nil {
			for _, l := range cs.itemProcessListeners {
				l.OnProcessError(ctx, item, procErr)
			}
			return false, procErr
		}
		if isNil(out) {
			stepExecution.FilterCount++
			continue
		}
		outputs = append(outputs, out)
	}

	if cs.txManager != nil {
		tx, err = cs.txManager.BeginTx(ctx, nil)
		if err != nil {
			tx = nil
			return false, exception.NewResourceAccessError(module, "トランザクションの開始に失敗しました", err)
		}
	}

	if len(outputs) > 0 {
		if writeErr := cs.writer.Write(ctx, tx, outputs); writeErr != nil {
			if len(cs.itemWriteListeners) > 0 {
				anyItems := make([]any, len(outputs))
				for i, o := range outputs {
					anyItems[i] = o
				}
				for _, l := range cs.itemWriteListeners {
					l.OnWriteError(ctx, anyItems, writeErr)
				}
			}
			return false, writeErr
		}
	}

	if tx != nil {
		if commitErr := tx.Commit(); commitErr != nil {
			tx = nil
			return false, exception.NewResourceAccessError(module, "トランザクションのコミットに失敗しました", commitErr)
		}
		tx = nil
	}
	stepExecution.WriteCount += len(outputs)
	stepExecution.CommitCount++

	if err := cs.checkpoint(ctx, stepExecution); err != nil {
		return false, err
	}

	for _, l := range cs.chunkListeners {
		l.AfterChunk(ctx, stepExecution)
	}
	logger.Debugf("ステップ '%s': チャンクをコミットしました (読み込み: %d, 書き込み: %d)", cs.name, len(items), len(outputs))
	return done, nil
}

// checkpoint はリーダーとライターの状態を StepExecution に取り込み、永続化します。
func (cs *ChunkStep[I, O]) checkpoint(ctx context.Context, stepExecution *core.StepExecution) error {
	readerEC, err := cs.reader.GetExecutionContext(ctx)
	if err != nil {
		return exception.NewBatchError(module, "Reader の ExecutionContext 取得に失敗しました", err)
	}
	writerEC, err := cs.writer.GetExecutionContext(ctx)
	if err != nil {
		return exception.NewBatchError(module, "Writer の ExecutionContext 取得に失敗しました", err)
	}
	stepExecution.ExecutionContext.Merge(readerEC)
	stepExecution.ExecutionContext.Merge(writerEC)

	if err := cs.repository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("ステップ '%s' のチェックポイントの保存に失敗しました", cs.name), err)
	}
	return nil
}

// isNil はプロセッサの出力がフィルタを意味する nil かどうかを判定します。
func isNil[T any](v T) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

var _ core.Step = (*ChunkStep[any, any])(nil)
