package bullmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const obliterateBatchSize = 1000

// Queue is a handle on one BullMQ queue.
type Queue struct {
	client *Client
	name   string
	keys   queueKeys
	closed atomic.Bool
}

// NewQueue creates a handle for the named queue. Handles share the client's connection.
func (c *Client) NewQueue(name string) QueueHandle {
	return c.queue(name)
}

func (c *Client) queue(name string) *Queue {
	return &Queue{
		client: c,
		name:   name,
		keys:   newQueueKeys(c.prefix, name),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Close marks the handle closed; later mutations return ErrQueueClosed.
func (q *Queue) Close() error {
	q.closed.Store(true)
	return nil
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	return q.closed.Load()
}

func (q *Queue) checkOpen() error {
	if q.closed.Load() {
		return fmt.Errorf("%s: %w", q.name, ErrQueueClosed)
	}
	return nil
}

// Counts returns the size of every state structure in one pipeline.
func (q *Queue) Counts(ctx context.Context) (map[JobState]int64, error) {
	pipe := q.client.redis.Pipeline()
	cmds := make(map[JobState]*redis.IntCmd, len(AllStates))
	for _, state := range AllStates {
		key, isList := q.keys.state(RawStateOf(state))
		if isList {
			cmds[state] = pipe.LLen(ctx, key)
		} else {
			cmds[state] = pipe.ZCard(ctx, key)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	counts := make(map[JobState]int64, len(AllStates))
	for state, cmd := range cmds {
		counts[state] = cmd.Val()
	}
	return counts, nil
}

// Count returns the size of one state structure.
func (q *Queue) Count(ctx context.Context, state RawState) (int64, error) {
	key, isList := q.keys.state(state)
	if key == "" {
		return 0, nil
	}
	if isList {
		return q.client.redis.LLen(ctx, key).Result()
	}
	return q.client.redis.ZCard(ctx, key).Result()
}

// IsPaused reports whether meta.paused is set.
func (q *Queue) IsPaused(ctx context.Context) (bool, error) {
	return q.client.redis.HExists(ctx, q.keys.meta(), "paused").Result()
}

// Pause stops workers from picking up waiting jobs.
func (q *Queue) Pause(ctx context.Context) error {
	return q.setPaused(ctx, "pause")
}

// Resume reverses Pause.
func (q *Queue) Resume(ctx context.Context) error {
	return q.setPaused(ctx, "resume")
}

func (q *Queue) setPaused(ctx context.Context, action string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	keys := []string{q.keys.wait(), q.keys.paused(), q.keys.meta()}
	return pauseScript.Run(ctx, q.client.redis, keys, action).Err()
}

// GetJobs fetches job hashes for a range of a state structure.
// Ids whose hash has disappeared are skipped.
func (q *Queue) GetJobs(ctx context.Context, state RawState, start, end int64, asc bool) ([]*Job, error) {
	ids, err := q.rangeIDs(ctx, state, start, end, asc)
	if err != nil {
		return nil, err
	}
	return q.fetchJobs(ctx, ids)
}

func (q *Queue) rangeIDs(ctx context.Context, state RawState, start, end int64, asc bool) ([]string, error) {
	key, isList := q.keys.state(state)
	if key == "" {
		return nil, nil
	}

	var (
		ids []string
		err error
	)
	switch {
	case isList && asc:
		// Lists are LPUSHed, so the oldest entries sit at the tail.
		ids, err = q.client.redis.LRange(ctx, key, -(end + 1), -(start + 1)).Result()
		slices.Reverse(ids)
	case isList:
		ids, err = q.client.redis.LRange(ctx, key, start, end).Result()
	case asc:
		ids, err = q.client.redis.ZRange(ctx, key, start, end).Result()
	default:
		ids, err = q.client.redis.ZRevRange(ctx, key, start, end).Result()
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return ids, nil
}

func (q *Queue) fetchJobs(ctx context.Context, ids []string) ([]*Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, q.keys.job(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	jobs := make([]*Job, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		jobs = append(jobs, parseJob(q.name, ids[i], fields))
	}
	return jobs, nil
}

// GetJob fetches a single job hash.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	fields, err := q.client.redis.HGetAll(ctx, q.keys.job(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return parseJob(q.name, id, fields), nil
}

// GetState locates the structure holding the job id.
func (q *Queue) GetState(ctx context.Context, id string) (RawState, error) {
	pipe := q.client.redis.Pipeline()
	scored := []RawState{RawCompleted, RawFailed, RawDelayed}
	listed := []RawState{RawActive, RawWaiting, RawPaused}
	tail := []RawState{RawPrioritized, RawWaitingChildren}

	type lookup struct {
		state RawState
		cmd   interface{ Err() error }
	}
	lookups := make([]lookup, 0, len(scored)+len(listed)+len(tail))
	for _, state := range scored {
		key, _ := q.keys.state(state)
		lookups = append(lookups, lookup{state, pipe.ZScore(ctx, key, id)})
	}
	for _, state := range listed {
		key, _ := q.keys.state(state)
		lookups = append(lookups, lookup{state, pipe.LPos(ctx, key, id, redis.LPosArgs{})})
	}
	for _, state := range tail {
		key, _ := q.keys.state(state)
		lookups = append(lookups, lookup{state, pipe.ZScore(ctx, key, id)})
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return RawUnknown, err
	}
	for _, p := range lookups {
		if p.cmd.Err() == nil {
			return p.state, nil
		}
	}
	return RawUnknown, nil
}

// IsDelayed reports whether the id is in the delayed set.
func (q *Queue) IsDelayed(ctx context.Context, id string) (bool, error) {
	key, _ := q.keys.state(RawDelayed)
	err := q.client.redis.ZScore(ctx, key, id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Logs returns log lines in [start, end] and the total line count.
func (q *Queue) Logs(ctx context.Context, id string, start, end int64) ([]string, int64, error) {
	key := q.keys.job(id) + ":logs"
	pipe := q.client.redis.Pipeline()
	linesCmd := pipe.LRange(ctx, key, start, end)
	countCmd := pipe.LLen(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}
	return linesCmd.Val(), countCmd.Val(), nil
}

// Dependencies returns the child job keys of a parent job.
func (q *Queue) Dependencies(ctx context.Context, id string) (Children, error) {
	key := q.keys.job(id)
	pipe := q.client.redis.Pipeline()
	pendingCmd := pipe.SMembers(ctx, key+":dependencies")
	processedCmd := pipe.HGetAll(ctx, key+":processed")
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Children{}, err
	}
	pending := pendingCmd.Val()
	slices.Sort(pending)
	return Children{Pending: pending, Processed: processedCmd.Val()}, nil
}

// AddOptions configures a new job.
type AddOptions struct {
	JobID     string
	Delay     time.Duration
	Priority  int64
	Attempts  int64
	Timestamp time.Time
	// Extra is merged into the stored opts JSON.
	Extra map[string]any
}

// Add enqueues a job and returns its id.
func (q *Queue) Add(ctx context.Context, name, data string, opts AddOptions) (string, error) {
	if err := q.checkOpen(); err != nil {
		return "", err
	}
	if data == "" {
		data = "{}"
	}

	stored := make(map[string]any, len(opts.Extra)+4)
	for k, v := range opts.Extra {
		stored[k] = v
	}
	if opts.Attempts > 0 {
		stored["attempts"] = opts.Attempts
	}
	delayMs := opts.Delay.Milliseconds()
	if delayMs > 0 {
		stored["delay"] = delayMs
	}
	if opts.Priority > 0 {
		stored["priority"] = opts.Priority
	}
	if opts.JobID != "" {
		stored["jobId"] = opts.JobID
	}
	optsJSON, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("encode job options: %w", err)
	}

	timestamp := opts.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	keys := []string{
		q.keys.meta(),
		q.keys.key("id"),
		q.keys.wait(),
		q.keys.paused(),
		q.keys.key("delayed"),
		q.keys.key("prioritized"),
		q.keys.key("pc"),
	}
	args := []any{
		q.keys.base,
		opts.JobID,
		name,
		data,
		string(optsJSON),
		strconv.FormatInt(timestamp.UnixMilli(), 10),
		strconv.FormatInt(delayMs, 10),
		strconv.FormatInt(opts.Priority, 10),
	}

	result, err := addJobScript.Run(ctx, q.client.redis, keys, args...).Slice()
	if err != nil {
		return "", err
	}
	if len(result) != 2 {
		return "", fmt.Errorf("add job: unexpected reply %v", result)
	}
	id := fmt.Sprint(result[1])
	if status, _ := parseOptionalInt64(result[0]); status == 0 {
		return id, fmt.Errorf("%s: %w", id, ErrDuplicateJob)
	}
	return id, nil
}

// Retry moves a failed job back to waiting.
func (q *Queue) Retry(ctx context.Context, id string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	jobKey := q.keys.job(id)
	keys := []string{
		jobKey,
		jobKey + ":lock",
		q.keys.key("failed"),
		q.keys.wait(),
		q.keys.paused(),
		q.keys.meta(),
		q.keys.key("prioritized"),
		q.keys.key("pc"),
	}
	return q.runStatus(ctx, retryScript, id, keys, id)
}

// Promote moves a delayed job to waiting immediately.
func (q *Queue) Promote(ctx context.Context, id string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	keys := []string{
		q.keys.job(id),
		q.keys.key("delayed"),
		q.keys.wait(),
		q.keys.paused(),
		q.keys.meta(),
		q.keys.key("prioritized"),
		q.keys.key("pc"),
	}
	return q.runStatus(ctx, promoteScript, id, keys, id)
}

// Discard flags the job so it is not retried after its current attempt.
func (q *Queue) Discard(ctx context.Context, id string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	return q.runStatus(ctx, discardScript, id, []string{q.keys.job(id)})
}

// Remove deletes a job together with its children.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	return q.runStatus(ctx, removeJobScript, id, nil, q.keys.base, id)
}

func (q *Queue) runStatus(ctx context.Context, script *redis.Script, id string, keys []string, args ...any) error {
	code, err := script.Run(ctx, q.client.redis, keys, args...).Int64()
	if err != nil {
		return err
	}
	if err := scriptError(code); err != nil {
		return fmt.Errorf("job %s: %w", id, err)
	}
	return nil
}

// Clean removes jobs in state whose finish (or creation) time is older than grace.
func (q *Queue) Clean(ctx context.Context, grace time.Duration, limit int64, state RawState) ([]string, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	suffix, isList := stateKeySuffix(state)
	if suffix == "" {
		return nil, fmt.Errorf("clean: unsupported state %q", state)
	}

	field := "timestamp"
	if state == RawCompleted || state == RawFailed {
		field = "finishedOn"
	}
	listFlag := "0"
	if isList {
		listFlag = "1"
	}
	cutoff := time.Now().Add(-grace).UnixMilli()

	return cleanScript.Run(ctx, q.client.redis, nil,
		q.keys.base, suffix, listFlag, strconv.FormatInt(cutoff, 10), strconv.FormatInt(limit, 10), field,
	).StringSlice()
}

// Drain removes all waiting jobs, plus delayed ones when delayed is true.
func (q *Queue) Drain(ctx context.Context, delayed bool) (int64, error) {
	if err := q.checkOpen(); err != nil {
		return 0, err
	}
	keys := []string{
		q.keys.wait(),
		q.keys.paused(),
		q.keys.key("prioritized"),
		q.keys.key("delayed"),
		q.keys.key("pc"),
	}
	flag := "0"
	if delayed {
		flag = "1"
	}
	return drainScript.Run(ctx, q.client.redis, keys, q.keys.base, flag).Int64()
}

// Obliterate deletes every key of the queue. The queue must be paused unless force
// is set, and active jobs block it unless force is set.
func (q *Queue) Obliterate(ctx context.Context, force bool) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	if !force {
		paused, err := q.IsPaused(ctx)
		if err != nil {
			return err
		}
		if !paused {
			return ErrQueueNotPaused
		}
		active, err := q.Count(ctx, RawActive)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrQueueHasActiveJobs
		}
	}

	keys, err := q.client.ScanKeys(ctx, q.keys.base+":*")
	if err != nil {
		return err
	}
	for batch := range slices.Chunk(keys, obliterateBatchSize) {
		if err := q.client.redis.Del(ctx, batch...).Err(); err != nil {
			return err
		}
	}
	return nil
}
