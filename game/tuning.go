package game

const (
	WorldWidth  = 1600.0
	WorldHeight = 1200.0

	PlayerSpeed = 5.0 // 每 Tick 位移
	EnemySpeed  = 1.6

	WaveBase          = 3    // 第一波敌人数
	WaveGrowth        = 2    // 每波增加
	WaveHealthGrowth  = 0.15 // 每波敌人血量倍率增量
	SpawnRadius       = 420.0
	EnemySeparation   = 0.5 // 敌人之间的推开比例
	PublishEveryTicks = 3   // 本地状态广播间隔
)
