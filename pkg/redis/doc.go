// Package redis connects to Redis through go-redis and provides a
// lease-based Locker used to serialize work on a single subscription across
// processes.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	locker := redis.NewLockerFromConfig(client, cfg, redis.WithLockPrefix("creatorpay:sub:"))
//
//	unlock, err := locker.Lock(ctx, subID.String())
//	if err != nil {
//		return err // ErrLockNotAcquired when another worker holds it
//	}
//	defer unlock(context.WithoutCancel(ctx))
//
// Locks are SET NX PX keys holding a random token; release deletes the key
// only while it still holds that token.
package redis
