package utils

// MergeStateData объединяет state_data заявки с новыми данными перехода:
// поверхностное объединение, для вложенных объектов (например staff_creator_info)
// выполняется рекурсивное слияние. Прежний контекст никогда не затирается целиком.
func MergeStateData(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	merged := make(map[string]interface{}, len(dst)+len(src))
	for k, v := range dst {
		merged[k] = v
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]interface{})
		dstMap, dstIsMap := merged[k].(map[string]interface{})
		if srcIsMap && dstIsMap {
			merged[k] = MergeStateData(dstMap, srcMap)
			continue
		}
		merged[k] = v
	}
	return merged
}
